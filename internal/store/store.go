package store

import (
	"context"
	"errors"

	"github.com/rubbereco/rex-negotiation/internal/model"
)

var (
	// ErrNotFound indicates no negotiation exists for the given key.
	ErrNotFound = errors.New("negotiation not found")
	// ErrConcurrentModification indicates the stored version advanced past
	// the version the caller read. Retryable: reload and resubmit.
	ErrConcurrentModification = errors.New("negotiation was modified concurrently")
)

// NegotiationStore is the durable record behind the engine. The engine reads
// a snapshot, applies one transition, and writes back with CompareAndSwap.
type NegotiationStore interface {
	Load(ctx context.Context, negotiationID string) (model.Negotiation, error)
	LoadBySubject(ctx context.Context, subjectRef string) (model.Negotiation, error)

	// CompareAndSwap writes n, whose Version must already be
	// expectedVersion+1. expectedVersion 0 means "create": the write fails
	// with ErrConcurrentModification if a negotiation already exists for
	// n.NegotiationID or n.SubjectRef.
	CompareAndSwap(ctx context.Context, expectedVersion int64, n model.Negotiation) error

	// ListByParty returns negotiations where the party holds either role,
	// newest first. Terminal negotiations are retained for audit and
	// included.
	ListByParty(ctx context.Context, partyID string, limit int) ([]model.Negotiation, error)

	Close() error
}
