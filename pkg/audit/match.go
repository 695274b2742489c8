package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MonitorMatch records a single monitor match against a block (§3).
type MonitorMatch struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	MonitorID        uuid.UUID
	NetworkID        uuid.UUID
	BlockNumber      int64
	TransactionHash  *string
	MatchData        json.RawMessage
	TriggersExecuted int
	TriggersFailed   int
	CreatedAt        time.Time
}
