// Package command defines the typed commands accepted by the settlement
// engine's shell. Both ingestion surfaces (NATS and HTTP) parse into these
// types before anything reaches the engine goroutine.
package command

import "github.com/google/uuid"

// Command is implemented by every command struct.
type Command interface {
	// Name returns the operation name, matching the engine's op labels.
	Name() string
	// CommandID is the client-supplied idempotency key, used to deduplicate
	// redeliveries. Empty means the caller opted out of deduplication.
	CommandID() string
	// CallerID identifies the submitting authority or bettor.
	CallerID() uuid.UUID
}

// Base carries the fields shared by every command.
type Base struct {
	ID     string
	Caller uuid.UUID
}

func (b Base) CommandID() string   { return b.ID }
func (b Base) CallerID() uuid.UUID { return b.Caller }
