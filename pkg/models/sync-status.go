package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusDone    = "done"
	SyncStatusError   = "error"
)

// SyncStatus is the durable synchronization record for one mirrored source.
// There is at most one row per source key.
type SyncStatus struct {
	bun.BaseModel `bun:"table:sync_statuses,alias:ss"`

	SourceKey    string     `bun:",pk,nullzero" json:"source_key"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Status       string     `bun:",nullzero" json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	// Upstream never reports a true total, so TotalCount tracks SyncedCount
	// for the whole run. Both reset to 0 when a run begins.
	SyncedCount  int     `json:"synced_count"`
	TotalCount   int     `json:"total_count"`
	ErrorMessage *string `json:"error_message"`
	OwnerHint    *string `json:"owner_hint"`
}
