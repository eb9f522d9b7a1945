package domain

import "time"

// LifecycleNotice is published to the message bus after a lifecycle event
// commits. Consumers must tolerate duplicates.
type LifecycleNotice struct {
	ContractID string    `json:"contract_id"`
	Kind       EventKind `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}
