package hubspot

import (
	"context"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/models"
)

// fixedWindow throttles to limit requests per window, sleeping out the rest
// of the window when the limit is hit. HubSpot enforces a fixed-window quota,
// so a token bucket would still trip it at window boundaries.
type fixedWindow struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
}

func newFixedWindow() *fixedWindow {
	return &fixedWindow{limit: 99, window: 10 * time.Second}
}

func (w *fixedWindow) Tick(ctx context.Context) {
	now := time.Now()
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.window {
		w.windowStart = now
		w.count = 0
	}
	w.count++
	if w.count < w.limit {
		return
	}

	remaining := w.window - now.Sub(w.windowStart)
	if remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
		}
	}
	w.windowStart = time.Now()
	w.count = 0
}

// SyncOffices pushes every active office to HubSpot, creating companies for
// offices without a HubSpot id and updating the rest. Failures on individual
// offices are logged and skipped so one bad record cannot stall the run.
func SyncOffices(ctx context.Context, client *Client) error {
	logger := config.GetLogger()
	db := config.GetDB()
	throttle := newFixedWindow()

	lastID := ""
	for {
		var offices []models.Office
		err := db.WithContext(ctx).
			Preload("MLS").
			Where("id > ? AND status = ?", lastID, models.StatusActive).
			Order("id").
			Limit(models.BulkBatchSize).
			Find(&offices).Error
		if err != nil {
			return err
		}
		if len(offices) == 0 {
			return nil
		}

		for i := range offices {
			office := &offices[i]
			throttle.Tick(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if office.HubspotID == nil {
				hubspotID, err := client.CreateCompany(ctx, office.HubspotProperties())
				if err != nil {
					config.LogError(logger, "hubspot", "SyncOffices", "create company",
						map[string]any{"office_id": office.ID}, err)
					continue
				}
				office.HubspotID = &hubspotID
				if err := db.WithContext(ctx).Model(office).
					Update("hubspot_id", hubspotID).Error; err != nil {
					config.LogError(logger, "hubspot", "SyncOffices", "store hubspot id",
						map[string]any{"office_id": office.ID}, err)
				}
				continue
			}

			if err := client.UpdateCompany(ctx, *office.HubspotID, office.HubspotProperties()); err != nil {
				config.LogError(logger, "hubspot", "SyncOffices", "update company",
					map[string]any{"office_id": office.ID}, err)
			}
		}
		lastID = offices[len(offices)-1].ID
	}
}

// SyncAgents pushes active agents whose office already has a HubSpot company,
// associating each new contact with that company.
func SyncAgents(ctx context.Context, client *Client) error {
	logger := config.GetLogger()
	db := config.GetDB()
	throttle := newFixedWindow()

	lastID := ""
	for {
		var agents []models.Agent
		err := db.WithContext(ctx).
			Preload("MLS").
			Preload("Office").
			Where("id > ? AND status = ?", lastID, models.StatusActive).
			Order("id").
			Limit(models.BulkBatchSize).
			Find(&agents).Error
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			return nil
		}

		for i := range agents {
			agent := &agents[i]
			if agent.Office == nil || agent.Office.HubspotID == nil {
				continue
			}
			throttle.Tick(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if agent.HubspotID == nil {
				hubspotID, err := client.CreateContact(ctx, agent.HubspotProperties())
				if err != nil {
					config.LogError(logger, "hubspot", "SyncAgents", "create contact",
						map[string]any{"agent_id": agent.ID}, err)
					continue
				}
				agent.HubspotID = &hubspotID
				if err := db.WithContext(ctx).Model(agent).
					Update("hubspot_id", hubspotID).Error; err != nil {
					config.LogError(logger, "hubspot", "SyncAgents", "store hubspot id",
						map[string]any{"agent_id": agent.ID}, err)
				}

				throttle.Tick(ctx)
				if err := client.AssociateContactToCompany(ctx, hubspotID, *agent.Office.HubspotID); err != nil {
					config.LogError(logger, "hubspot", "SyncAgents", "associate contact",
						map[string]any{"agent_id": agent.ID}, err)
				}
				continue
			}

			if err := client.UpdateContact(ctx, *agent.HubspotID, agent.HubspotProperties()); err != nil {
				config.LogError(logger, "hubspot", "SyncAgents", "update contact",
					map[string]any{"agent_id": agent.ID}, err)
			}
		}
		lastID = agents[len(agents)-1].ID
	}
}
