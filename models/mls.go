package models

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/bsm/redislock"
	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/utils"
)

const agentsBaseTable = "agents"

// MLS is one feed partition. Each MLS owns a materialized view of its active
// agents so "my MLS" lookups never scan the full agents table.
type MLS struct {
	ID                          string     `gorm:"primaryKey;size:32" json:"id"`
	Name                        string     `gorm:"size:256" json:"name"`
	TableSlug                   string     `gorm:"column:table_name;size:64" json:"table_name"`
	Source                      string     `gorm:"size:32;index;default:constellation" json:"source"`
	CompanyHubspotInternalValue string     `gorm:"size:256" json:"company_hubspot_internal_value"`
	ContactHubspotInternalValue string     `gorm:"size:256" json:"contact_hubspot_internal_value"`
	DataAvailableUntil          *time.Time `json:"data_available_until"`
	CreatedAt                   time.Time  `json:"created_at"`
	UpdatedAt                   time.Time  `json:"updated_at"`
}

// TableName keeps the short name instead of the pluralized default.
func (MLS) TableName() string { return "mls" }

func (m *MLS) CompanyHubspotValue() string {
	if m.CompanyHubspotInternalValue != "" {
		return m.CompanyHubspotInternalValue
	}
	return m.Name
}

func (m *MLS) ContactHubspotValue() string {
	if m.ContactHubspotInternalValue != "" {
		return m.ContactHubspotInternalValue
	}
	return m.Name
}

// AlnumOnly strips everything but letters and digits. Partition identifiers
// are built exclusively from sanitized parts; nothing else may ever be
// interpolated into view DDL.
func AlnumOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AgentMatviewTableName derives the partition identifier for this MLS:
// {agents}_{source}_{table_name}, lowercase alphanumeric only. Deterministic,
// so the same MLS always routes to the same view.
func (m *MLS) AgentMatviewTableName() string {
	return fmt.Sprintf("%s_%s_%s",
		agentsBaseTable,
		strings.ToLower(AlnumOnly(m.Source)),
		strings.ToLower(AlnumOnly(m.TableSlug)),
	)
}

// CreateMLS persists the MLS and materializes its agent partition in the same
// call. Partition lifecycle is serialized per MLS with a redis lock; unrelated
// partitions proceed independently.
func CreateMLS(ctx context.Context, mls *MLS) error {
	mls.Source = sourceOrDefault(mls.Source)

	release, err := lockMLSPartition(ctx, mls.ID)
	if err != nil {
		return err
	}
	defer release()

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(mls).Error; err != nil {
		return err
	}
	return mls.CreateAgentMatview(ctx)
}

// DeleteMLS tears the partition down before removing the row, so a routed
// query can never land on a view whose owner is already gone.
func DeleteMLS(ctx context.Context, id string) error {
	mls := GetByIDOrNone[MLS](ctx, id)
	if mls == nil {
		return utils.ErrorRecordNotFound
	}

	release, err := lockMLSPartition(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := mls.DropAgentMatview(ctx); err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Delete(&MLS{}, "id = ?", id).Error
}

// CreateAgentMatview materializes the per-MLS active-agent view.
func (m *MLS) CreateAgentMatview(ctx context.Context) error {
	db := config.GetDB()
	// DDL does not take bind parameters, so the id is quoted inline.
	quotedID := "'" + strings.ReplaceAll(m.ID, "'", "''") + "'"
	stmt := fmt.Sprintf(
		"CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS SELECT * FROM %s WHERE status = 'Active' AND mls_id = %s",
		m.AgentMatviewTableName(), agentsBaseTable, quotedID,
	)
	return db.WithContext(ctx).Exec(stmt).Error
}

// RefreshAgentMatview fully recomputes the view from the live agents table.
// REFRESH replaces the contents only on success; a failed refresh leaves the
// previous (stale) data in place.
func (m *MLS) RefreshAgentMatview(ctx context.Context) error {
	db := config.GetDB()
	return db.WithContext(ctx).Exec("REFRESH MATERIALIZED VIEW " + m.AgentMatviewTableName()).Error
}

// DropAgentMatview removes the view.
func (m *MLS) DropAgentMatview(ctx context.Context) error {
	db := config.GetDB()
	return db.WithContext(ctx).Exec("DROP MATERIALIZED VIEW IF EXISTS " + m.AgentMatviewTableName()).Error
}

// RefreshAllAgentMatviews refreshes every partition, continuing past
// individual failures so one broken view does not starve the rest.
func RefreshAllAgentMatviews(ctx context.Context) error {
	db := config.GetDB()
	var mlss []*MLS
	if err := db.WithContext(ctx).Find(&mlss).Error; err != nil {
		return err
	}
	logger := config.GetLogger()
	for _, mls := range mlss {
		if err := mls.RefreshAgentMatview(ctx); err != nil {
			config.LogError(logger, "models", "RefreshAllAgentMatviews", mls.ID, nil, err)
		}
	}
	return nil
}

// ImportMLSsFromStorage bulk-loads the MLS reference sheet (MLSID.csv) from
// object storage and materializes a partition for each new MLS.
func ImportMLSsFromStorage(ctx context.Context) error {
	records, err := utils.DownloadCSVRecords(ctx, "MLSID.csv")
	if err != nil {
		return err
	}

	mlss := make([]*MLS, 0, len(records))
	for _, record := range records {
		if record["MLS ID"] == "" {
			continue
		}
		mlss = append(mlss, &MLS{
			ID:        record["MLS ID"],
			Name:      record["MLS Name"],
			TableSlug: record["Table Name"],
			Source:    SourceConstellation,
		})
	}

	if _, err := BulkCreateWithFallback(ctx, mlss); err != nil {
		return err
	}
	for _, mls := range mlss {
		if err := mls.CreateAgentMatview(ctx); err != nil {
			return err
		}
	}
	return nil
}

// lockMLSPartition serializes partition DDL per MLS. Without redis (tests,
// one-shot jobs against a scratch database) it degrades to a no-op.
func lockMLSPartition(ctx context.Context, id string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lock, err := locker.Obtain(ctx, "mls_partition:"+id, 2*time.Minute, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(500 * time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
