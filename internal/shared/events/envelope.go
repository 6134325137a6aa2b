package events

import (
	"encoding/json"
	"time"
)

// Envelope is the event shape written to the outbox and published on the bus.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	SourceService  string          `json:"source_service"`
	OccurredAtUTC  time.Time       `json:"occurred_at_utc"`
	ActorID        string          `json:"actor_id,omitempty"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	PartitionKey   string          `json:"partition_key"`
	PayloadVersion int             `json:"payload_version"`
	Payload        json.RawMessage `json:"payload"`
}

// Topic is the bus topic an envelope is routed to.
func (e Envelope) Topic() string {
	return e.EventType
}
