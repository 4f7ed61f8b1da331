package realitysync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/geo"
	"github.com/smartsetter/ssot_backend/hubspot"
	"github.com/smartsetter/ssot_backend/models"
	"github.com/smartsetter/ssot_backend/utils"
)

const pullWatermarkKey = "reality_pull_watermark"

func processSyncRun(ctx context.Context, payload SyncRunPayload) error {
	logger := config.GetLogger()
	if payload.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
	}
	logger.WithField("kind", payload.Kind).Info("sync run started")

	var err error
	switch payload.Kind {
	case RunFullImportKind:
		err = RunFullImport(ctx)
	case RunPullUpdatesKind:
		err = RunPullUpdates(ctx)
	case RunUpdateStatsKind:
		err = runStatsRefresh(ctx)
	case RunRebuildBrandsKind:
		err = models.RebuildBrandsFromMappingSheet(ctx, models.Brands)
	case RunVerifyPhonesKind:
		err = VerifyAgentPhonesFromSheet(ctx)
	case RunRefreshMatviewsKind:
		err = models.RefreshAllAgentMatviews(ctx)
	case RunHubspotSyncKind:
		err = RunHubspotSync(ctx)
	default:
		err = errors.New("unknown sync run kind: " + payload.Kind)
	}

	if err != nil {
		config.LogError(logger, "realitysync", "processSyncRun", "run failed",
			map[string]any{"kind": payload.Kind}, err)
		return err
	}
	logger.WithField("kind", payload.Kind).Info("sync run finished")
	return nil
}

// RunFullImport rebuilds the canonical store from the feed: reference sheets
// first, then offices, agents and transactions in dependency order, then the
// derived statistics and partition views. Malformed feed rows are skipped,
// never fatal.
func RunFullImport(ctx context.Context) error {
	logger := config.GetLogger()

	if err := models.ImportMLSsFromStorage(ctx); err != nil {
		return err
	}
	if err := models.RebuildBrandsFromMappingSheet(ctx, models.Brands); err != nil {
		return err
	}
	if _, err := models.ImportZipcodesFromStorage(ctx); err != nil {
		config.LogError(logger, "realitysync", "RunFullImport", "zipcode import", nil, err)
	}

	brands, err := models.Brands.Get(ctx)
	if err != nil {
		return err
	}

	err = QueryTableBatches(ctx, FullTableQuery(models.RealityTableOffices), nil,
		func(batch []models.RealityRow) error {
			return importOfficeBatch(ctx, batch, brands)
		})
	if err != nil {
		return err
	}

	err = QueryTableBatches(ctx, FullTableQuery(models.RealityTableAgents), nil,
		func(batch []models.RealityRow) error {
			_, err := importAgentBatch(ctx, batch, brands)
			return err
		})
	if err != nil {
		return err
	}

	err = QueryTableBatches(ctx, FullTableQuery(models.RealityTableTransactions), nil,
		func(batch []models.RealityRow) error {
			return importTransactionBatch(ctx, batch)
		})
	if err != nil {
		return err
	}

	if err := models.UpdateAgentCachedStats(ctx); err != nil {
		return err
	}
	if err := models.RefreshAllAgentMatviews(ctx); err != nil {
		return err
	}

	return setPullWatermark(time.Now())
}

// RunPullUpdates upserts feed rows modified since the last pull, enriches
// agents that are new to the store, then refreshes statistics and partition
// views and pushes the changes to the CRM.
func RunPullUpdates(ctx context.Context) error {
	logger := config.GetLogger()
	since := getPullWatermark()
	started := time.Now()
	brands, err := models.Brands.Get(ctx)
	if err != nil {
		return err
	}

	err = QueryTableBatches(ctx, UpdatedSinceQuery(models.RealityTableOffices), []any{since},
		func(batch []models.RealityRow) error {
			for _, row := range batch {
				office, err := models.OfficeFromRealityRow(ctx, row, brands)
				if err != nil {
					continue
				}
				if err := models.UpsertByID(ctx, office); err != nil {
					config.LogError(logger, "realitysync", "RunPullUpdates", "upsert office",
						map[string]any{"office_id": office.ID}, err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	var newAgentIDs []string
	err = QueryTableBatches(ctx, UpdatedSinceQuery(models.RealityTableAgents), []any{since},
		func(batch []models.RealityRow) error {
			for _, row := range batch {
				agent, err := models.AgentFromRealityRow(ctx, row, brands)
				if err != nil || agent.ID == "" {
					continue
				}
				isNew := models.GetByIDOrNone[models.Agent](ctx, agent.ID) == nil
				if err := models.UpsertByID(ctx, agent); err != nil {
					config.LogError(logger, "realitysync", "RunPullUpdates", "upsert agent",
						map[string]any{"agent_id": agent.ID}, err)
					continue
				}
				if isNew {
					newAgentIDs = append(newAgentIDs, agent.ID)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	err = QueryTableBatches(ctx, UpdatedSinceQuery(models.RealityTableTransactions), []any{since},
		func(batch []models.RealityRow) error {
			for _, row := range batch {
				txn, err := models.TransactionFromRealityRow(ctx, row)
				if err != nil || txn.ID == "" {
					continue
				}
				if err := models.UpsertByID(ctx, txn); err != nil {
					config.LogError(logger, "realitysync", "RunPullUpdates", "upsert transaction",
						map[string]any{"transaction_id": txn.ID}, err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	for _, agentID := range newAgentIDs {
		if agent := models.GetByIDOrNone[models.Agent](ctx, agentID); agent != nil {
			EnrichAgent(ctx, agent, brands)
		}
	}

	if err := models.UpdateAgentCachedStats(ctx); err != nil {
		return err
	}
	if err := models.RefreshAllAgentMatviews(ctx); err != nil {
		return err
	}
	if err := RunHubspotSync(ctx); err != nil {
		config.LogError(logger, "realitysync", "RunPullUpdates", "hubspot sync", nil, err)
	}

	return setPullWatermark(started)
}

func importOfficeBatch(ctx context.Context, batch []models.RealityRow, brands []models.Brand) error {
	logger := config.GetLogger()
	offices := make([]*models.Office, 0, len(batch))
	for _, row := range batch {
		office, err := models.OfficeFromRealityRow(ctx, row, brands)
		if err != nil {
			if errors.Is(err, utils.ErrorMalformedRecord) {
				logger.WithField("office_id", row.String("OfficeID")).
					Info("skipping malformed office row")
				continue
			}
			return err
		}
		if office.ID == "" {
			continue
		}
		offices = append(offices, office)
	}
	_, err := models.BulkCreateWithFallback(ctx, offices)
	return err
}

func importAgentBatch(ctx context.Context, batch []models.RealityRow, brands []models.Brand) ([]*models.Agent, error) {
	agents := make([]*models.Agent, 0, len(batch))
	for _, row := range batch {
		agent, err := models.AgentFromRealityRow(ctx, row, brands)
		if err != nil || agent.ID == "" {
			continue
		}
		agents = append(agents, agent)
	}
	_, err := models.BulkCreateWithFallback(ctx, agents)
	return agents, err
}

func importTransactionBatch(ctx context.Context, batch []models.RealityRow) error {
	txns := make([]*models.Transaction, 0, len(batch))
	for _, row := range batch {
		txn, err := models.TransactionFromRealityRow(ctx, row)
		if err != nil || txn.ID == "" {
			continue
		}
		txns = append(txns, txn)
	}
	_, err := models.BulkCreateWithFallback(ctx, txns)
	return err
}

// EnrichAgent fills in what the feed does not carry: the brand inferred from
// the agent's email domain and office name, a location resolved from the
// postal code with a street-address fallback, and the state backfilled from
// the zipcode reference sheet. Enrichment failures leave the agent as-is.
func EnrichAgent(ctx context.Context, agent *models.Agent, brands []models.Brand) {
	logger := config.GetLogger()
	updates := map[string]any{}

	if agent.BrandID == nil {
		texts := []string{derefString(agent.OfficeName)}
		if agent.Email != nil {
			texts = append(texts, *agent.Email)
		}
		if brand := models.MatchBrand(brands, texts...); brand != nil {
			agent.BrandID = &brand.ID
			updates["brand_id"] = brand.ID
		}
	}

	if agent.Location == nil && agent.Zipcode != nil {
		location, err := geo.LocationForZipcode(ctx, *agent.Zipcode)
		if err == nil && location == nil && agent.Address != nil {
			location, err = geo.GeocodeAddress(ctx,
				*agent.Address, derefString(agent.City), derefString(agent.State), *agent.Zipcode)
		}
		if err != nil {
			config.LogError(logger, "realitysync", "EnrichAgent", "geocode",
				map[string]any{"agent_id": agent.ID}, err)
		} else if location != nil {
			agent.Location = location
			updates["location"] = location
		}
	}

	if (agent.State == nil || *agent.State == "") && agent.Zipcode != nil {
		if zipcode := models.GetZipcode(ctx, *agent.Zipcode); zipcode != nil && zipcode.State != "" {
			agent.State = &zipcode.State
			updates["state"] = zipcode.State
			if agent.City == nil || *agent.City == "" {
				agent.City = &zipcode.City
				updates["city"] = zipcode.City
			}
		}
	}

	if len(updates) == 0 {
		return
	}
	if err := config.GetDB().WithContext(ctx).Model(agent).Updates(updates).Error; err != nil {
		config.LogError(logger, "realitysync", "EnrichAgent", "persist enrichment",
			map[string]any{"agent_id": agent.ID}, err)
	}
}

// VerifyAgentPhonesFromSheet applies the phone validator export: rows whose
// line type is a cell phone become the agent's verified phone.
func VerifyAgentPhonesFromSheet(ctx context.Context) error {
	logger := config.GetLogger()
	records, err := utils.DownloadCSVRecords(ctx, "phone_validator.csv")
	if err != nil {
		return err
	}

	db := config.GetDB()
	verified := 0
	for _, record := range records {
		if !strings.EqualFold(strings.TrimSpace(record["line type"]), "CELL PHONE") {
			continue
		}
		agentID := strings.TrimSpace(record["agent_id"])
		phone, err := utils.FormatPhone(record["phone"])
		if agentID == "" || err != nil {
			continue
		}

		err = db.WithContext(ctx).Model(&models.Agent{}).
			Where("id = ?", agentID).
			Updates(map[string]any{
				"verified_phone":        phone,
				"verified_phone_source": models.PhoneSourceValidator,
			}).Error
		if err != nil {
			config.LogError(logger, "realitysync", "VerifyAgentPhonesFromSheet", "update agent",
				map[string]any{"agent_id": agentID}, err)
			continue
		}
		verified++
	}
	logger.WithField("verified", verified).Info("verified phones applied")
	return nil
}

// RunHubspotSync pushes offices first so agent contacts can associate to
// their companies.
func RunHubspotSync(ctx context.Context) error {
	client := hubspot.NewClient()
	if err := hubspot.SyncOffices(ctx, client); err != nil {
		return err
	}
	return hubspot.SyncAgents(ctx, client)
}

// runStatsRefresh serializes stats recomputation across instances. A refresh
// already in flight elsewhere makes this run a no-op.
func runStatsRefresh(ctx context.Context) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return models.UpdateAgentCachedStats(ctx)
	}
	lock, err := locker.Obtain(ctx, "agent_stats_run", 30*time.Minute, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.GetLogger().Info("stats refresh already running, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release(ctx)
	return models.UpdateAgentCachedStats(ctx)
}

func getPullWatermark() time.Time {
	var watermark time.Time
	if found, err := config.GetRedisObject(pullWatermarkKey, &watermark); err == nil && found {
		return watermark
	}
	return time.Now().AddDate(0, 0, -7)
}

func setPullWatermark(t time.Time) error {
	return config.SetRedisObject(pullWatermarkKey, t, 0)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
