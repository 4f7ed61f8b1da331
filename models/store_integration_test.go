package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/models"
)

func setupIntegrationDB(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	pgName, pgPort := startPostgisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_NAME", "ssot_test")
	t.Setenv("DB_SSLMODE", "disable")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
}

func TestPartitionRoutingAndStore(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()

	mls := &models.MLS{
		ID:        "abor",
		Name:      "Austin Board of REALTORS",
		TableSlug: "tbl_abor_agents",
		Source:    "constellation",
	}
	if err := models.CreateMLS(ctx, mls); err != nil {
		t.Fatalf("CreateMLS: %v", err)
	}

	status := models.StatusActive
	agents := []*models.Agent{
		{ID: "AG1__abor", Name: "Jane Doe", AgentID: "AG1", MLSID: &mls.ID, Status: &status},
		{ID: "AG2__abor", Name: "John Roe", AgentID: "AG2", MLSID: &mls.ID, Status: &status},
	}
	if _, err := models.BulkCreateWithFallback(ctx, agents); err != nil {
		t.Fatalf("BulkCreateWithFallback: %v", err)
	}

	// Re-importing the same batch plus one new row must keep going past the
	// duplicates and land only the new row.
	created, err := models.BulkCreateWithFallback(ctx, []*models.Agent{
		agents[0],
		{ID: "AG3__abor", Name: "New Agent", AgentID: "AG3", MLSID: &mls.ID, Status: &status},
	})
	if err != nil {
		t.Fatalf("BulkCreateWithFallback re-import: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 new row, got %d", created)
	}

	// Upserting an existing id overwrites in place instead of conflicting.
	renamed := *agents[0]
	renamed.Name = "Jane Doe-Smith"
	if err := models.UpsertByID(ctx, &renamed); err != nil {
		t.Fatalf("UpsertByID: %v", err)
	}
	stored := models.GetByIDOrNone[models.Agent](ctx, "AG1__abor")
	if stored == nil || stored.Name != "Jane Doe-Smith" {
		t.Fatalf("upsert did not overwrite, got %+v", stored)
	}

	// The partition view only serves rows after a refresh.
	if err := mls.RefreshAgentMatview(ctx); err != nil {
		t.Fatalf("RefreshAgentMatview: %v", err)
	}

	found, err := models.SearchAgents(ctx, []models.PortalFilter{
		{Field: "name", Type: models.FilterContains, Value: "doe"},
		{Field: "mls_id", Type: models.FilterIs, Value: "abor"},
	}, 10)
	if err != nil {
		t.Fatalf("SearchAgents: %v", err)
	}
	if len(found) != 1 || found[0].ID != "AG1__abor" {
		t.Fatalf("partition search returned %+v", found)
	}

	// Unknown MLS must fail the whole expression, not fall back to the base
	// table.
	if _, err := models.SearchAgents(ctx, []models.PortalFilter{
		{Field: "mls_id", Type: models.FilterIs, Value: "nope"},
	}, 10); err == nil {
		t.Fatal("expected error for unknown mls")
	}

	if err := models.DeleteMLS(ctx, "abor"); err != nil {
		t.Fatalf("DeleteMLS: %v", err)
	}
	if models.GetByIDOrNone[models.MLS](ctx, "abor") != nil {
		t.Fatal("mls row must be gone after delete")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ssot-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startPostgisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ssot-test-postgis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "POSTGRES_PASSWORD=testpw",
		"-e", "POSTGRES_DB=ssot_test",
		"-p", "127.0.0.1:0:5432",
		"postgis/postgis:16-3.4",
	)
	if err != nil {
		t.Fatalf("start postgis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "5432/tcp")
	if err != nil {
		t.Fatalf("postgis docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "pg_isready", "-U", "postgres")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgis did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
