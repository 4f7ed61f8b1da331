package realitysync

import "encoding/json"

// Sync run kinds dispatched over pub/sub. Each kind maps to one operation of
// the sync worker.
const (
	RunFullImportKind      = "full_import"
	RunPullUpdatesKind     = "pull_updates"
	RunUpdateStatsKind     = "update_stats"
	RunRebuildBrandsKind   = "rebuild_brands"
	RunVerifyPhonesKind    = "verify_phones"
	RunRefreshMatviewsKind = "refresh_matviews"
	RunHubspotSyncKind     = "hubspot_sync"
)

type SyncRunPayload struct {
	Kind          string `json:"kind"`
	CorrelationId string `json:"correlationId"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      json.RawMessage `json:"data"`
		MessageId string          `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func validRunKind(kind string) bool {
	switch kind {
	case RunFullImportKind, RunPullUpdatesKind, RunUpdateStatsKind,
		RunRebuildBrandsKind, RunVerifyPhonesKind,
		RunRefreshMatviewsKind, RunHubspotSyncKind:
		return true
	}
	return false
}
