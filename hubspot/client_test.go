package hubspot_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartsetter/ssot_backend/hubspot"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newHubspotStub(t *testing.T, handler http.HandlerFunc) *hubspot.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("HUBSPOT_BASE_URL", srv.URL)
	return hubspot.NewClient()
}

func TestCreateContact(t *testing.T) {
	var got recordedRequest
	client := newHubspotStub(t, func(w http.ResponseWriter, r *http.Request) {
		got.Method = r.Method
		got.Path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1001"}`))
	})

	id, err := client.CreateContact(context.Background(), map[string]any{
		"full_name": "Jane Doe",
		"phone":     "+12025550173",
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if id != "1001" {
		t.Fatalf("got id %q", id)
	}
	if got.Method != http.MethodPost || got.Path != "/crm/v3/objects/contacts" {
		t.Fatalf("got %s %s", got.Method, got.Path)
	}
	props, _ := got.Body["properties"].(map[string]any)
	if props["full_name"] != "Jane Doe" {
		t.Fatalf("properties not forwarded: %v", got.Body)
	}
}

func TestCreateContact_ConflictRetriesAsUpdateWithoutPhone(t *testing.T) {
	var update recordedRequest
	client := newHubspotStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"Contact already exists. Existing ID: 55123"}`))
			return
		}
		update.Method = r.Method
		update.Path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&update.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"55123"}`))
	})

	id, err := client.CreateContact(context.Background(), map[string]any{
		"full_name": "Jane Doe",
		"phone":     "+12025550173",
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if id != "55123" {
		t.Fatalf("expected existing id from conflict body, got %q", id)
	}
	if update.Method != http.MethodPatch || update.Path != "/crm/v3/objects/contacts/55123" {
		t.Fatalf("got %s %s", update.Method, update.Path)
	}
	props, _ := update.Body["properties"].(map[string]any)
	if _, hasPhone := props["phone"]; hasPhone {
		t.Fatal("phone must be dropped on conflict retry")
	}
	if props["full_name"] != "Jane Doe" {
		t.Fatalf("remaining properties must be kept: %v", props)
	}
}

func TestAssociateContactToCompany(t *testing.T) {
	var got recordedRequest
	var payload []map[string]any
	client := newHubspotStub(t, func(w http.ResponseWriter, r *http.Request) {
		got.Method = r.Method
		got.Path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	if err := client.AssociateContactToCompany(context.Background(), "1001", "2002"); err != nil {
		t.Fatalf("AssociateContactToCompany: %v", err)
	}
	if got.Method != http.MethodPut ||
		got.Path != "/crm/v4/objects/contacts/1001/associations/companies/2002" {
		t.Fatalf("got %s %s", got.Method, got.Path)
	}
	if len(payload) != 1 || payload[0]["associationTypeId"] != float64(279) {
		t.Fatalf("unexpected association payload: %v", payload)
	}
}

func TestCreateCompanyErrorSurfaces(t *testing.T) {
	client := newHubspotStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	if _, err := client.CreateCompany(context.Background(), map[string]any{"name": "X"}); err == nil {
		t.Fatal("expected error on 500")
	}
}
