package audit

import (
	"time"

	"github.com/google/uuid"
)

// MissedBlock records a block that ingestion skipped or failed on (§3).
type MissedBlock struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	NetworkID   uuid.UUID
	BlockNumber int64
	Reason      string
	RetryCount  int
	Processed   bool
	ProcessedAt *time.Time
	CreatedAt   time.Time
}
