package models_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smartsetter/ssot_backend/models"
)

func TestSalesVolumeScore(t *testing.T) {
	cases := []struct {
		production int64
		want       float64
	}{
		{0, 10},
		{2_000_000, 0},
		{5_000_000, 0},
		{1_000_000, 5},
		{200_000, 9},
	}
	for _, tc := range cases {
		agent := models.Agent{TotalProduction: decimal.NewFromInt(tc.production)}
		if got := agent.SalesVolumeScore(); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("production %d: got %v want %v", tc.production, got, tc.want)
		}
	}
}

func TestTransactionCountScore(t *testing.T) {
	cases := []struct {
		count string
		want  float64
	}{
		{"0", 10},
		{"10", 0},
		{"25", 10},
		{"4", 6},
		{"4.5", 5.5},
	}
	for _, tc := range cases {
		count, _ := decimal.NewFromString(tc.count)
		agent := models.Agent{TotalTransactionsCount: count}
		if got := agent.TransactionCountScore(); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("count %s: got %v want %v", tc.count, got, tc.want)
		}
	}
}

func TestTenureScore(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	cases := []struct {
		days *int
		want float64
	}{
		{nil, 35},
		{intPtr(365), 30},
		{intPtr(365 * 2), 25},
		{intPtr(365 * 7), 0},
		{intPtr(365 * 8), 0},
	}
	for _, tc := range cases {
		agent := models.Agent{TenureDays: tc.days}
		if got := agent.TenureScore(); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("days %v: got %v want %v", tc.days, got, tc.want)
		}
	}
}

func TestOfficeSizeScore(t *testing.T) {
	if got := models.OfficeSizeScore(25); got != 5 {
		t.Fatalf("got %v", got)
	}
	if got := models.OfficeSizeScore(500); got != 15 {
		t.Fatalf("score must cap at 15, got %v", got)
	}
	if got := models.OfficeSizeScore(0); got != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestListingRatioAndAveragePrice(t *testing.T) {
	agent := models.Agent{
		TotalTransactionsCount: decimal.NewFromInt(4),
		ListingProduction:      decimal.NewFromInt(750_000),
		TotalProduction:        decimal.NewFromInt(1_000_000),
	}
	if ratio := agent.ListingRatio(); ratio == nil || math.Abs(*ratio-0.75) > 1e-9 {
		t.Fatalf("got %v", ratio)
	}
	if avg := agent.AverageTransactionPrice(); avg == nil || math.Abs(*avg-250_000) > 1e-9 {
		t.Fatalf("got %v", avg)
	}

	zeroProduction := models.Agent{
		TotalTransactionsCount: decimal.NewFromInt(2),
		ListingProduction:      decimal.Zero,
		TotalProduction:        decimal.Zero,
	}
	if ratio := zeroProduction.ListingRatio(); ratio == nil || *ratio != 0 {
		t.Fatalf("zero production with activity must yield 0, got %v", ratio)
	}

	empty := models.Agent{}
	if empty.ListingRatio() != nil || empty.AverageTransactionPrice() != nil {
		t.Fatal("agents without transactions have no ratio or average")
	}
}

func TestAssignRole_BrokerKeyWins(t *testing.T) {
	office := &models.Office{
		RawData: models.JSONMap{"OfficeBrokerKey": "AG1__MLS1"},
	}
	agent := models.Agent{
		ID:                     "AG1__MLS1",
		AgentID:                "AG1",
		TotalTransactionsCount: decimal.NewFromInt(5),
		RawData:                models.JSONMap{"MemberType": "Office Staff"},
	}

	agent.AssignRole(office)
	if agent.Role == nil || *agent.Role != models.RoleBroker {
		t.Fatalf("broker key must win over everything, got %v", agent.Role)
	}

	// The office keys carry canonical ids; a bare source id is no match.
	sourceKeyed := models.Agent{ID: "AG1__MLS1", AgentID: "AG1"}
	sourceKeyed.AssignRole(&models.Office{RawData: models.JSONMap{"OfficeBrokerKey": "AG1"}})
	if sourceKeyed.Role != nil && *sourceKeyed.Role == models.RoleBroker {
		t.Fatal("source agent id must not match the broker key")
	}
}

func TestAssignRole_TransactionsForceAgent(t *testing.T) {
	agent := models.Agent{
		AgentID:                "AG2",
		TotalTransactionsCount: decimal.NewFromInt(1),
		RawData:                models.JSONMap{"MemberType": "Office Staff"},
	}

	agent.AssignRole(nil)
	if agent.Role == nil || *agent.Role != models.RoleAgent {
		t.Fatalf("producing agents keep the agent role, got %v", agent.Role)
	}
}

func TestAssignRole_NonProducingPatterns(t *testing.T) {
	agent := models.Agent{
		AgentID: "AG3",
		RawData: models.JSONMap{"MemberType": "Office Staff"},
	}
	agent.AssignRole(nil)
	if agent.Role == nil || *agent.Role != models.RoleOther {
		t.Fatalf("member type must classify as other, got %v", agent.Role)
	}

	agent = models.Agent{
		AgentID: "AG4",
		RawData: models.JSONMap{"MemberMlsSecurityClass": "Appraiser"},
	}
	agent.AssignRole(nil)
	if agent.Role == nil || *agent.Role != models.RoleOther {
		t.Fatalf("security class must classify as other, got %v", agent.Role)
	}
}

func TestAssignRole_DefaultsToAgent(t *testing.T) {
	agent := models.Agent{AgentID: "AG5"}
	agent.AssignRole(nil)
	if agent.Role == nil || *agent.Role != models.RoleAgent {
		t.Fatalf("unclassified agents default to agent, got %v", agent.Role)
	}

	agent = models.Agent{
		AgentID: "AG6",
		RawData: models.JSONMap{"MemberType": "REALTOR"},
	}
	agent.AssignRole(nil)
	if agent.Role == nil || *agent.Role != models.RoleAgent {
		t.Fatalf("non-staff member types default to agent, got %v", agent.Role)
	}
}

func TestBestPhone(t *testing.T) {
	feed := "+12025550100"
	verified := "+12025550199"

	agent := models.Agent{Phone: &feed}
	if got := agent.BestPhone(); got == nil || *got != feed {
		t.Fatalf("got %v", got)
	}

	agent.VerifiedPhone = &verified
	if got := agent.BestPhone(); got == nil || *got != verified {
		t.Fatalf("verified phone must win, got %v", got)
	}
}
