package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartsetter/ssot_backend/config"
)

// AgentTransactionSet groups an agent's transactions by the role the agent
// played in them.
type AgentTransactionSet struct {
	Listing   []Transaction
	Colisting []Transaction
	Selling   []Transaction
	Coselling []Transaction
}

var halfWeight = decimal.NewFromFloat(0.5)

// RecomputeAgentStats rewrites the cached statistics on agent from its
// transaction set. Rolling figures cover sold transactions closed within the
// last twelve months; a co-attributed side counts half. All-time figures
// count primary roles only. The function is side-effect free beyond mutating
// agent, so callers decide when and how to persist.
func RecomputeAgentStats(agent *Agent, txns AgentTransactionSet, now time.Time) {
	windowStart := now.AddDate(-1, 0, 0)

	agent.ListingTransactionsCount = decimal.Zero
	agent.SellingTransactionsCount = decimal.Zero
	agent.ListingProduction = decimal.Zero
	agent.SellingProduction = decimal.Zero
	agent.AllTimeListingTransactionsCount = 0
	agent.AllTimeSellingTransactionsCount = 0
	agent.AllTimeListingProduction = 0
	agent.AllTimeSellingProduction = 0
	agent.TenureStartDate = nil
	agent.TenureEndDate = nil
	agent.TenureDays = nil
	agent.MostTransactedCity = nil
	agent.LastActivityDate = nil

	cityCounts := map[string]int{}

	accumulate := func(items []Transaction, weight decimal.Decimal, count, production *decimal.Decimal, allTimeCount, allTimeProduction *int64, primary bool) {
		for i := range items {
			txn := &items[i]
			if txn.City != nil && *txn.City != "" {
				cityCounts[*txn.City]++
			}
			if !txn.IsSold() {
				continue
			}
			if !txn.ClosedDate.Before(windowStart) {
				*count = count.Add(weight)
				*production = production.Add(
					decimal.NewFromInt(txn.EffectivePrice()).Mul(weight))
			}
			if primary {
				*allTimeCount++
				*allTimeProduction += txn.EffectivePrice()
			}
			if date := txn.EffectiveDate(); date != nil {
				if agent.TenureStartDate == nil || date.Before(*agent.TenureStartDate) {
					agent.TenureStartDate = date
				}
				if agent.TenureEndDate == nil || date.After(*agent.TenureEndDate) {
					agent.TenureEndDate = date
				}
			}
		}
	}

	one := decimal.NewFromInt(1)
	accumulate(txns.Listing, one, &agent.ListingTransactionsCount, &agent.ListingProduction,
		&agent.AllTimeListingTransactionsCount, &agent.AllTimeListingProduction, true)
	accumulate(txns.Colisting, halfWeight, &agent.ListingTransactionsCount, &agent.ListingProduction,
		&agent.AllTimeListingTransactionsCount, &agent.AllTimeListingProduction, false)
	accumulate(txns.Selling, one, &agent.SellingTransactionsCount, &agent.SellingProduction,
		&agent.AllTimeSellingTransactionsCount, &agent.AllTimeSellingProduction, true)
	accumulate(txns.Coselling, halfWeight, &agent.SellingTransactionsCount, &agent.SellingProduction,
		&agent.AllTimeSellingTransactionsCount, &agent.AllTimeSellingProduction, false)

	agent.TotalTransactionsCount = agent.ListingTransactionsCount.Add(agent.SellingTransactionsCount)
	agent.TotalProduction = agent.ListingProduction.Add(agent.SellingProduction)

	if agent.TenureStartDate != nil && agent.TenureEndDate != nil {
		days := int(agent.TenureEndDate.Sub(*agent.TenureStartDate).Hours() / 24)
		agent.TenureDays = &days
	}

	if city := mostTransactedCity(cityCounts); city != "" {
		agent.MostTransactedCity = &city
	}

	for _, items := range [][]Transaction{txns.Listing, txns.Selling} {
		for i := range items {
			date := items[i].ListingContractDate
			if date == nil {
				continue
			}
			if agent.LastActivityDate == nil || date.After(*agent.LastActivityDate) {
				agent.LastActivityDate = date
			}
		}
	}
}

// mostTransactedCity picks the city with the highest count; ties resolve to
// the lexically smallest name so repeated runs agree.
func mostTransactedCity(counts map[string]int) string {
	best := ""
	bestCount := 0
	for city, count := range counts {
		if count > bestCount || (count == bestCount && (best == "" || city < best)) {
			best = city
			bestCount = count
		}
	}
	return best
}

// LoadAgentTransactions fetches the agent's transactions bucketed by role.
func LoadAgentTransactions(ctx context.Context, agentID string) (AgentTransactionSet, error) {
	var set AgentTransactionSet
	db := dbOrNil()
	if db == nil {
		return set, nil
	}

	var txns []Transaction
	err := db.WithContext(ctx).
		Where("listing_agent_id = ? OR colisting_agent_id = ? OR selling_agent_id = ? OR coselling_agent_id = ?",
			agentID, agentID, agentID, agentID).
		Find(&txns).Error
	if err != nil {
		return set, err
	}

	for _, txn := range txns {
		if txn.ListingAgentID != nil && *txn.ListingAgentID == agentID {
			set.Listing = append(set.Listing, txn)
		}
		if txn.ColistingAgentID != nil && *txn.ColistingAgentID == agentID {
			set.Colisting = append(set.Colisting, txn)
		}
		if txn.SellingAgentID != nil && *txn.SellingAgentID == agentID {
			set.Selling = append(set.Selling, txn)
		}
		if txn.CosellingAgentID != nil && *txn.CosellingAgentID == agentID {
			set.Coselling = append(set.Coselling, txn)
		}
	}
	return set, nil
}

// UpdateAgentCachedStats recomputes and persists cached statistics for every
// agent. Agents are walked by keyset pagination and persisted in one bulk
// UPDATE per batch.
func UpdateAgentCachedStats(ctx context.Context) error {
	logger := config.GetLogger()
	db := dbOrNil()
	now := time.Now()

	lastID := ""
	total := 0
	for {
		var agents []Agent
		err := db.WithContext(ctx).
			Preload("Office").
			Where("id > ?", lastID).
			Order("id").
			Limit(BulkBatchSize).
			Find(&agents).Error
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			break
		}

		for i := range agents {
			agent := &agents[i]
			txns, err := LoadAgentTransactions(ctx, agent.ID)
			if err != nil {
				config.LogError(logger, "models", "UpdateAgentCachedStats", "load transactions",
					map[string]any{"agent_id": agent.ID}, err)
				continue
			}
			RecomputeAgentStats(agent, txns, now)
			agent.AssignRole(agent.Office)
		}

		if err := persistAgentStatsBatch(ctx, agents); err != nil {
			return err
		}

		total += len(agents)
		lastID = agents[len(agents)-1].ID
		logger.WithField("processed", total).Info("agent stats batch persisted")
	}
	return nil
}

// persistAgentStatsBatch writes the cached statistics of a batch with a
// single UPDATE ... FROM (VALUES ...) statement.
func persistAgentStatsBatch(ctx context.Context, agents []Agent) error {
	if len(agents) == 0 {
		return nil
	}

	rows := make([]string, 0, len(agents))
	args := make([]any, 0, len(agents)*16)
	for i := range agents {
		a := &agents[i]
		rows = append(rows,
			"(?, ?::numeric, ?::numeric, ?::numeric, ?::numeric, ?::numeric, ?::numeric, "+
				"?::bigint, ?::bigint, ?::bigint, ?::bigint, ?::date, ?::date, ?::int, ?, ?::date, ?)")
		args = append(args,
			a.ID,
			a.ListingTransactionsCount, a.SellingTransactionsCount, a.TotalTransactionsCount,
			a.ListingProduction, a.SellingProduction, a.TotalProduction,
			a.AllTimeListingTransactionsCount, a.AllTimeSellingTransactionsCount,
			a.AllTimeListingProduction, a.AllTimeSellingProduction,
			a.TenureStartDate, a.TenureEndDate, a.TenureDays,
			a.MostTransactedCity, a.LastActivityDate, a.Role,
		)
	}

	query := fmt.Sprintf(`
		UPDATE agents AS a SET
			listing_transactions_count = v.listing_transactions_count,
			selling_transactions_count = v.selling_transactions_count,
			total_transactions_count = v.total_transactions_count,
			listing_production = v.listing_production,
			selling_production = v.selling_production,
			total_production = v.total_production,
			all_time_listing_transactions_count = v.all_time_listing_transactions_count,
			all_time_selling_transactions_count = v.all_time_selling_transactions_count,
			all_time_listing_production = v.all_time_listing_production,
			all_time_selling_production = v.all_time_selling_production,
			tenure_start_date = v.tenure_start_date,
			tenure_end_date = v.tenure_end_date,
			tenure_days = v.tenure_days,
			most_transacted_city = v.most_transacted_city,
			last_activity_date = v.last_activity_date,
			role = v.role,
			updated_at = NOW()
		FROM (VALUES %s) AS v (
			id,
			listing_transactions_count, selling_transactions_count, total_transactions_count,
			listing_production, selling_production, total_production,
			all_time_listing_transactions_count, all_time_selling_transactions_count,
			all_time_listing_production, all_time_selling_production,
			tenure_start_date, tenure_end_date, tenure_days,
			most_transacted_city, last_activity_date, role
		)
		WHERE a.id = v.id`, strings.Join(rows, ", "))

	return dbOrNil().WithContext(ctx).Exec(query, args...).Error
}
