package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rubbereco/rex-negotiation/internal/model"
)

// MemoryNegotiationStore is the development-mode store. The mutex around the
// read-check-write in CompareAndSwap gives the same serialization per
// negotiation the real backends provide.
type MemoryNegotiationStore struct {
	mu        sync.RWMutex
	byID      map[string]model.Negotiation
	bySubject map[string]string // subjectRef -> negotiationID
}

func NewMemoryNegotiationStore() *MemoryNegotiationStore {
	return &MemoryNegotiationStore{
		byID:      map[string]model.Negotiation{},
		bySubject: map[string]string{},
	}
}

func (s *MemoryNegotiationStore) Load(ctx context.Context, negotiationID string) (model.Negotiation, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[negotiationID]
	if !ok {
		return model.Negotiation{}, ErrNotFound
	}
	return cloneNegotiation(n), nil
}

func (s *MemoryNegotiationStore) LoadBySubject(ctx context.Context, subjectRef string) (model.Negotiation, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySubject[subjectRef]
	if !ok {
		return model.Negotiation{}, ErrNotFound
	}
	return cloneNegotiation(s.byID[id]), nil
}

func (s *MemoryNegotiationStore) CompareAndSwap(ctx context.Context, expectedVersion int64, n model.Negotiation) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if expectedVersion == 0 {
		if _, exists := s.byID[n.NegotiationID]; exists {
			return ErrConcurrentModification
		}
		if _, exists := s.bySubject[n.SubjectRef]; exists {
			return ErrConcurrentModification
		}
		s.byID[n.NegotiationID] = cloneNegotiation(n)
		s.bySubject[n.SubjectRef] = n.NegotiationID
		return nil
	}

	stored, ok := s.byID[n.NegotiationID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConcurrentModification
	}
	s.byID[n.NegotiationID] = cloneNegotiation(n)
	return nil
}

func (s *MemoryNegotiationStore) ListByParty(ctx context.Context, partyID string, limit int) ([]model.Negotiation, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Negotiation
	for _, n := range s.byID {
		if n.InitiatorID == partyID || n.CounterpartyID == partyID {
			out = append(out, cloneNegotiation(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryNegotiationStore) Close() error { return nil }

// cloneNegotiation deep-copies the pointer and slice fields so callers can
// mutate snapshots without touching stored state.
func cloneNegotiation(n model.Negotiation) model.Negotiation {
	out := n
	if n.CurrentProposal != nil {
		p := *n.CurrentProposal
		out.CurrentProposal = &p
	}
	if n.FinalAgreement != nil {
		a := *n.FinalAgreement
		out.FinalAgreement = &a
	}
	if n.History != nil {
		out.History = make([]model.Proposal, len(n.History))
		copy(out.History, n.History)
	}
	return out
}
