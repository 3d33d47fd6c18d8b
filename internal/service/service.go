package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rubbereco/rex-negotiation/internal/events"
	"github.com/rubbereco/rex-negotiation/internal/model"
	"github.com/rubbereco/rex-negotiation/internal/store"
)

var (
	// ErrValidation covers malformed or missing terms, rejected before any
	// state is written.
	ErrValidation = errors.New("invalid terms")
	// ErrInvalidTransition covers a propose against an already-pending
	// proposal.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotYourTurn means the caller authored the pending proposal and must
	// wait for the other party to respond.
	ErrNotYourTurn = errors.New("the other party must respond to the current proposal first")
	// ErrNoActiveProposal means there is nothing pending to counter, accept
	// or reject.
	ErrNoActiveProposal = errors.New("no pending proposal")
	// ErrNegotiationClosed means the negotiation reached a terminal status.
	ErrNegotiationClosed = errors.New("negotiation is closed")
	// ErrNotParticipant means the caller is neither party of the
	// negotiation.
	ErrNotParticipant = errors.New("caller is not a party to this negotiation")
)

// Service is the negotiation engine. It owns no state of its own: every
// operation loads a snapshot from the store, validates one transition,
// and writes back with compare-and-swap. A ConcurrentModification from the
// store is returned to the caller untouched; retrying here would mask a
// decision made against stale state.
type Service struct {
	store  store.NegotiationStore
	events *events.Publisher

	now func() time.Time
}

func New(st store.NegotiationStore, pub *events.Publisher) *Service {
	slog.Info("negotiation service initialized")
	return &Service{
		store:  st,
		events: pub,
		now:    time.Now,
	}
}

// Propose opens a new proposal. For a fresh subject it also creates the
// negotiation, with the caller as initiator; on an existing negotiation it
// is legal only while no proposal is pending (including right after a
// reject).
func (s *Service) Propose(ctx context.Context, callerID, subjectRef string, req model.ProposeRequest) (model.Negotiation, error) {
	if err := validateTermsShape(req.Terms); err != nil {
		return model.Negotiation{}, err
	}

	n, err := s.store.LoadBySubject(ctx, subjectRef)
	if errors.Is(err, store.ErrNotFound) {
		return s.openNegotiation(ctx, callerID, subjectRef, req)
	}
	if err != nil {
		return model.Negotiation{}, fmt.Errorf("load negotiation: %w", err)
	}

	role, ok := n.RoleOf(callerID)
	if !ok {
		return model.Negotiation{}, ErrNotParticipant
	}
	if n.Status != model.NegotiationStatusOpen {
		return model.Negotiation{}, ErrNegotiationClosed
	}
	if n.CurrentProposal != nil {
		return model.Negotiation{}, fmt.Errorf("%w: a proposal is already pending", ErrInvalidTransition)
	}
	if err := validateTermsForKind(n.Kind, req.Terms); err != nil {
		return model.Negotiation{}, err
	}

	now := s.now().UTC()
	proposal := model.Proposal{
		ProposalID: generateID("prop_"),
		ProposedBy: role,
		Terms:      req.Terms,
		Notes:      req.Notes,
		ProposedAt: now,
		Outcome:    model.ProposalOutcomePending,
	}

	expected := n.Version
	n.CurrentProposal = &proposal
	n.UpdatedAt = now
	n.Version++

	if err := s.store.CompareAndSwap(ctx, expected, n); err != nil {
		return model.Negotiation{}, err
	}

	s.publishProposalSubmitted(ctx, n, proposal, false)
	return n, nil
}

func (s *Service) openNegotiation(ctx context.Context, callerID, subjectRef string, req model.ProposeRequest) (model.Negotiation, error) {
	if req.CounterpartyID == "" {
		return model.Negotiation{}, fmt.Errorf("%w: counterparty_id is required for a new negotiation", ErrValidation)
	}
	if req.CounterpartyID == callerID {
		return model.Negotiation{}, fmt.Errorf("%w: cannot negotiate with yourself", ErrValidation)
	}
	if !req.Kind.Valid() {
		return model.Negotiation{}, fmt.Errorf("%w: unknown negotiation kind %q", ErrValidation, req.Kind)
	}
	if err := validateTermsForKind(req.Kind, req.Terms); err != nil {
		return model.Negotiation{}, err
	}

	now := s.now().UTC()
	proposal := model.Proposal{
		ProposalID: generateID("prop_"),
		ProposedBy: model.RoleInitiator,
		Terms:      req.Terms,
		Notes:      req.Notes,
		ProposedAt: now,
		Outcome:    model.ProposalOutcomePending,
	}

	n := model.Negotiation{
		NegotiationID:   generateID("neg_"),
		SubjectRef:      subjectRef,
		Kind:            req.Kind,
		InitiatorID:     callerID,
		CounterpartyID:  req.CounterpartyID,
		Status:          model.NegotiationStatusOpen,
		CurrentProposal: &proposal,
		History:         []model.Proposal{},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CompareAndSwap(ctx, 0, n); err != nil {
		return model.Negotiation{}, err
	}

	s.publishProposalSubmitted(ctx, n, proposal, false)
	return n, nil
}

// CounterPropose supersedes the other party's pending proposal with a new
// one authored by the caller.
func (s *Service) CounterPropose(ctx context.Context, callerID, negotiationID string, req model.CounterRequest) (model.Negotiation, error) {
	if err := validateTermsShape(req.Terms); err != nil {
		return model.Negotiation{}, err
	}

	n, role, err := s.loadForResponse(ctx, callerID, negotiationID)
	if err != nil {
		return model.Negotiation{}, err
	}
	if err := validateTermsForKind(n.Kind, req.Terms); err != nil {
		return model.Negotiation{}, err
	}

	now := s.now().UTC()
	superseded := *n.CurrentProposal
	superseded.Outcome = model.ProposalOutcomeSuperseded

	proposal := model.Proposal{
		ProposalID: generateID("prop_"),
		ProposedBy: role,
		Terms:      req.Terms,
		Notes:      req.Notes,
		ProposedAt: now,
		Outcome:    model.ProposalOutcomePending,
	}

	expected := n.Version
	n.History = append(n.History, superseded)
	n.CurrentProposal = &proposal
	n.UpdatedAt = now
	n.Version++

	if err := s.store.CompareAndSwap(ctx, expected, n); err != nil {
		return model.Negotiation{}, err
	}

	s.publishProposalSubmitted(ctx, n, proposal, true)
	return n, nil
}

// Accept locks in the other party's pending proposal as the final
// agreement and closes the negotiation.
func (s *Service) Accept(ctx context.Context, callerID, negotiationID string) (model.Negotiation, error) {
	n, role, err := s.loadForResponse(ctx, callerID, negotiationID)
	if err != nil {
		return model.Negotiation{}, err
	}

	now := s.now().UTC()
	accepted := *n.CurrentProposal
	accepted.Outcome = model.ProposalOutcomeAccepted

	expected := n.Version
	n.History = append(n.History, accepted)
	n.CurrentProposal = nil
	n.FinalAgreement = &model.Agreement{
		AgreedTerms: accepted.Terms,
		AgreedAt:    now,
		AcceptedBy:  role,
	}
	n.Status = model.NegotiationStatusAgreed
	n.UpdatedAt = now
	n.Version++

	if err := s.store.CompareAndSwap(ctx, expected, n); err != nil {
		return model.Negotiation{}, err
	}

	s.publish(ctx, events.EventProposalAccepted, map[string]any{
		"negotiation_id":    n.NegotiationID,
		"subject_ref":       n.SubjectRef,
		"proposal_id":       accepted.ProposalID,
		"actor_role":        string(role),
		"agreed_rate":       accepted.Terms.Rate,
		"agreed_tree_count": accepted.Terms.TreeCount,
	})
	return n, nil
}

// Reject resolves the pending proposal as rejected and reopens the
// negotiation: either party may propose again afterwards.
func (s *Service) Reject(ctx context.Context, callerID, negotiationID string) (model.Negotiation, error) {
	n, role, err := s.loadForResponse(ctx, callerID, negotiationID)
	if err != nil {
		return model.Negotiation{}, err
	}

	now := s.now().UTC()
	rejected := *n.CurrentProposal
	rejected.Outcome = model.ProposalOutcomeRejected

	expected := n.Version
	n.History = append(n.History, rejected)
	n.CurrentProposal = nil
	n.UpdatedAt = now
	n.Version++

	if err := s.store.CompareAndSwap(ctx, expected, n); err != nil {
		return model.Negotiation{}, err
	}

	s.publish(ctx, events.EventProposalRejected, map[string]any{
		"negotiation_id": n.NegotiationID,
		"subject_ref":    n.SubjectRef,
		"proposal_id":    rejected.ProposalID,
		"actor_role":     string(role),
	})
	return n, nil
}

// Withdraw is the deliberate hard stop: either party may close an open
// negotiation for good. A pending proposal is resolved as rejected first.
func (s *Service) Withdraw(ctx context.Context, callerID, negotiationID string) (model.Negotiation, error) {
	n, err := s.store.Load(ctx, negotiationID)
	if err != nil {
		return model.Negotiation{}, err
	}

	role, ok := n.RoleOf(callerID)
	if !ok {
		return model.Negotiation{}, ErrNotParticipant
	}
	if n.Status != model.NegotiationStatusOpen {
		return model.Negotiation{}, ErrNegotiationClosed
	}

	now := s.now().UTC()
	expected := n.Version
	if n.CurrentProposal != nil {
		rejected := *n.CurrentProposal
		rejected.Outcome = model.ProposalOutcomeRejected
		n.History = append(n.History, rejected)
		n.CurrentProposal = nil
	}
	n.Status = model.NegotiationStatusRejectedTerminal
	n.UpdatedAt = now
	n.Version++

	if err := s.store.CompareAndSwap(ctx, expected, n); err != nil {
		return model.Negotiation{}, err
	}

	s.publish(ctx, events.EventNegotiationWithdrawn, map[string]any{
		"negotiation_id": n.NegotiationID,
		"subject_ref":    n.SubjectRef,
		"actor_role":     string(role),
	})
	return n, nil
}

// Get returns the current snapshot by negotiation id.
func (s *Service) Get(ctx context.Context, negotiationID string) (model.Negotiation, error) {
	return s.store.Load(ctx, negotiationID)
}

// GetBySubject returns the current snapshot for a business subject.
func (s *Service) GetBySubject(ctx context.Context, subjectRef string) (model.Negotiation, error) {
	return s.store.LoadBySubject(ctx, subjectRef)
}

// ListByParty returns a party's negotiations, newest first.
func (s *Service) ListByParty(ctx context.Context, partyID string, limit int) ([]model.Negotiation, error) {
	return s.store.ListByParty(ctx, partyID, limit)
}

// loadForResponse loads a negotiation and checks the shared preconditions
// of counter, accept and reject: the caller is a party, the negotiation is
// open, a proposal is pending, and the caller did not author it.
func (s *Service) loadForResponse(ctx context.Context, callerID, negotiationID string) (model.Negotiation, model.Role, error) {
	n, err := s.store.Load(ctx, negotiationID)
	if err != nil {
		return model.Negotiation{}, "", err
	}

	role, ok := n.RoleOf(callerID)
	if !ok {
		return model.Negotiation{}, "", ErrNotParticipant
	}
	if n.Status != model.NegotiationStatusOpen {
		return model.Negotiation{}, "", ErrNegotiationClosed
	}
	if n.CurrentProposal == nil {
		return model.Negotiation{}, "", ErrNoActiveProposal
	}
	if n.CurrentProposal.ProposedBy == role {
		return model.Negotiation{}, "", ErrNotYourTurn
	}
	return n, role, nil
}

func (s *Service) publishProposalSubmitted(ctx context.Context, n model.Negotiation, p model.Proposal, countered bool) {
	s.publish(ctx, events.EventProposalSubmitted, map[string]any{
		"negotiation_id": n.NegotiationID,
		"subject_ref":    n.SubjectRef,
		"proposal_id":    p.ProposalID,
		"actor_role":     string(p.ProposedBy),
		"rate":           p.Terms.Rate,
		"tree_count":     p.Terms.TreeCount,
		"countered":      countered,
	})
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, data); err != nil {
		slog.WarnContext(ctx, "event publish failed", "event_type", eventType, "error", err)
	}
}

// validateTermsShape rejects structurally bad terms before any state read.
func validateTermsShape(t model.Terms) error {
	if t.TreeCount <= 0 {
		return fmt.Errorf("%w: tree_count must be a positive integer", ErrValidation)
	}
	if t.Rate != "" {
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			return fmt.Errorf("%w: rate %q is not a decimal number", ErrValidation, t.Rate)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("%w: rate must be positive", ErrValidation)
		}
	}
	return nil
}

// validateTermsForKind enforces which fields the negotiation haggles over.
func validateTermsForKind(kind model.Kind, t model.Terms) error {
	switch kind {
	case model.KindRateAndQuantity:
		if t.Rate == "" {
			return fmt.Errorf("%w: rate is required", ErrValidation)
		}
	case model.KindQuantityOnly:
		if t.Rate != "" {
			return fmt.Errorf("%w: rate is not negotiable here", ErrValidation)
		}
	}
	return nil
}

func generateID(prefix string) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return prefix + hex.EncodeToString(b[:8])
}
