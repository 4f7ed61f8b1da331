package models_test

import (
	"testing"
	"time"

	"github.com/smartsetter/ssot_backend/models"
)

var statsNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func soldTxn(closePrice int64, closed time.Time, city string) models.Transaction {
	txn := models.Transaction{
		ClosePrice: &closePrice,
		ClosedDate: &closed,
	}
	if city != "" {
		txn.City = &city
	}
	return txn
}

func TestRecomputeAgentStats_CoAttributionHalfWeight(t *testing.T) {
	agent := &models.Agent{}
	closed := statsNow.AddDate(0, -2, 0)

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Listing:   []models.Transaction{soldTxn(100, closed, "")},
		Colisting: []models.Transaction{soldTxn(200, closed, "")},
	}, statsNow)

	if got := agent.ListingTransactionsCount.String(); got != "1.5" {
		t.Fatalf("listing count: got %s", got)
	}
	if got := agent.ListingProduction.String(); got != "200" {
		t.Fatalf("listing production: got %s", got)
	}
	if got := agent.TotalTransactionsCount.String(); got != "1.5" {
		t.Fatalf("total count: got %s", got)
	}

	// All-time figures count primary roles only, with no halving.
	if agent.AllTimeListingTransactionsCount != 1 {
		t.Fatalf("all-time listing count: got %d", agent.AllTimeListingTransactionsCount)
	}
	if agent.AllTimeListingProduction != 100 {
		t.Fatalf("all-time listing production: got %d", agent.AllTimeListingProduction)
	}
}

func TestRecomputeAgentStats_TwelveMonthWindow(t *testing.T) {
	agent := &models.Agent{}
	inside := statsNow.AddDate(0, -11, 0)
	outside := statsNow.AddDate(-2, 0, 0)

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Selling: []models.Transaction{
			soldTxn(500000, inside, ""),
			soldTxn(900000, outside, ""),
		},
	}, statsNow)

	if got := agent.SellingTransactionsCount.String(); got != "1" {
		t.Fatalf("rolling count must exclude old transactions, got %s", got)
	}
	if got := agent.SellingProduction.String(); got != "500000" {
		t.Fatalf("rolling production must exclude old transactions, got %s", got)
	}

	// The old sale still counts toward all-time figures and tenure.
	if agent.AllTimeSellingTransactionsCount != 2 {
		t.Fatalf("all-time count: got %d", agent.AllTimeSellingTransactionsCount)
	}
	if agent.TenureStartDate == nil || !agent.TenureStartDate.Equal(outside) {
		t.Fatalf("tenure start: got %v", agent.TenureStartDate)
	}
}

func TestRecomputeAgentStats_UnsoldTransactionsIgnored(t *testing.T) {
	agent := &models.Agent{}
	listPrice := int64(400000)
	city := "Austin"

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Listing: []models.Transaction{{ListPrice: &listPrice, City: &city}},
	}, statsNow)

	if !agent.TotalTransactionsCount.IsZero() {
		t.Fatalf("unsold listings must not count, got %s", agent.TotalTransactionsCount)
	}
	if agent.TenureStartDate != nil {
		t.Fatalf("unsold listings must not set tenure, got %v", agent.TenureStartDate)
	}
	// City activity is tallied regardless of sale status.
	if agent.MostTransactedCity == nil || *agent.MostTransactedCity != "Austin" {
		t.Fatalf("pending listings must still count toward cities, got %v", agent.MostTransactedCity)
	}
}

func TestRecomputeAgentStats_TenureSpansAllRoles(t *testing.T) {
	agent := &models.Agent{}
	earliest := statsNow.AddDate(-5, 0, 0)
	latest := statsNow.AddDate(0, -1, 0)

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Coselling: []models.Transaction{soldTxn(100, earliest, "")},
		Listing:   []models.Transaction{soldTxn(100, latest, "")},
	}, statsNow)

	if agent.TenureStartDate == nil || !agent.TenureStartDate.Equal(earliest) {
		t.Fatalf("tenure start: got %v", agent.TenureStartDate)
	}
	if agent.TenureEndDate == nil || !agent.TenureEndDate.Equal(latest) {
		t.Fatalf("tenure end: got %v", agent.TenureEndDate)
	}
	wantDays := int(latest.Sub(earliest).Hours() / 24)
	if agent.TenureDays == nil || *agent.TenureDays != wantDays {
		t.Fatalf("tenure days: got %v want %d", agent.TenureDays, wantDays)
	}
}

func TestRecomputeAgentStats_TenurePrefersContractDate(t *testing.T) {
	agent := &models.Agent{}
	contract := statsNow.AddDate(-3, 0, 0)
	closed := statsNow.AddDate(0, -6, 0)
	price := int64(100)
	txn := models.Transaction{
		ClosePrice:          &price,
		ClosedDate:          &closed,
		ListingContractDate: &contract,
	}

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Listing: []models.Transaction{txn},
	}, statsNow)

	if agent.TenureStartDate == nil || !agent.TenureStartDate.Equal(contract) {
		t.Fatalf("tenure must use the contract date when present, got %v", agent.TenureStartDate)
	}
}

func TestRecomputeAgentStats_MostTransactedCityTieBreak(t *testing.T) {
	agent := &models.Agent{}
	closed := statsNow.AddDate(0, -1, 0)

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Listing: []models.Transaction{
			soldTxn(100, closed, "Round Rock"),
			soldTxn(100, closed, "Austin"),
		},
	}, statsNow)

	if agent.MostTransactedCity == nil || *agent.MostTransactedCity != "Austin" {
		t.Fatalf("tie must resolve to the lexically smallest city, got %v", agent.MostTransactedCity)
	}

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Listing: []models.Transaction{
			soldTxn(100, closed, "Round Rock"),
			soldTxn(100, closed, "Round Rock"),
			soldTxn(100, closed, "Austin"),
		},
	}, statsNow)
	if agent.MostTransactedCity == nil || *agent.MostTransactedCity != "Round Rock" {
		t.Fatalf("majority city must win, got %v", agent.MostTransactedCity)
	}
}

func TestRecomputeAgentStats_LastActivityFromPrimaryRoles(t *testing.T) {
	agent := &models.Agent{}
	older := statsNow.AddDate(0, -8, 0)
	newer := statsNow.AddDate(0, -2, 0)
	newest := statsNow.AddDate(0, -1, 0)
	price := int64(100)
	closed := statsNow.AddDate(0, -1, 0)

	mk := func(contract time.Time) models.Transaction {
		return models.Transaction{
			ClosePrice:          &price,
			ClosedDate:          &closed,
			ListingContractDate: &contract,
		}
	}

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{
		Listing:   []models.Transaction{mk(older)},
		Selling:   []models.Transaction{mk(newer)},
		Colisting: []models.Transaction{mk(newest)},
	}, statsNow)

	if agent.LastActivityDate == nil || !agent.LastActivityDate.Equal(newer) {
		t.Fatalf("last activity must come from primary roles only, got %v", agent.LastActivityDate)
	}
}

func TestRecomputeAgentStats_ResetsPreviousValues(t *testing.T) {
	city := "Austin"
	days := 100
	agent := &models.Agent{
		MostTransactedCity: &city,
		TenureDays:         &days,
	}

	models.RecomputeAgentStats(agent, models.AgentTransactionSet{}, statsNow)

	if agent.MostTransactedCity != nil || agent.TenureDays != nil {
		t.Fatal("stale cached values must be cleared when transactions disappear")
	}
	if !agent.TotalTransactionsCount.IsZero() || !agent.TotalProduction.IsZero() {
		t.Fatal("counts must reset to zero")
	}
}
