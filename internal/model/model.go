package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies one of the two sides of a negotiation.
type Role string

const (
	RoleInitiator    Role = "initiator"
	RoleCounterparty Role = "counterparty"
)

// Other returns the opposite side.
func (r Role) Other() Role {
	if r == RoleInitiator {
		return RoleCounterparty
	}
	return RoleInitiator
}

// Kind selects which term fields a negotiation haggles over.
type Kind string

const (
	// KindRateAndQuantity covers rate plus tree count (farmer vs applicant).
	KindRateAndQuantity Kind = "RATE_AND_QUANTITY"
	// KindQuantityOnly covers tree count alone (farmer vs field inspector).
	KindQuantityOnly Kind = "QUANTITY_ONLY"
)

func (k Kind) Valid() bool {
	return k == KindRateAndQuantity || k == KindQuantityOnly
}

type NegotiationStatus string

const (
	NegotiationStatusOpen   NegotiationStatus = "OPEN"
	NegotiationStatusAgreed NegotiationStatus = "AGREED"
	// NegotiationStatusRejectedTerminal is the deliberate hard stop reached
	// only through withdraw. An ordinary reject keeps the negotiation OPEN.
	NegotiationStatusRejectedTerminal NegotiationStatus = "REJECTED_TERMINAL"
)

type ProposalOutcome string

const (
	ProposalOutcomePending    ProposalOutcome = "PENDING"
	ProposalOutcomeAccepted   ProposalOutcome = "ACCEPTED"
	ProposalOutcomeRejected   ProposalOutcome = "REJECTED"
	ProposalOutcomeSuperseded ProposalOutcome = "SUPERSEDED"
)

// Terms is one concrete offer. Rate is a decimal currency amount carried as
// a string (exact arithmetic happens through shopspring/decimal); it is
// empty for QUANTITY_ONLY negotiations.
type Terms struct {
	Rate      string `json:"rate,omitempty" bson:"rate,omitempty" firestore:"rate,omitempty"`
	TreeCount int64  `json:"tree_count" bson:"tree_count" firestore:"tree_count"`
}

// Equal compares terms by exact value: decimal equality for the rate, no
// tolerance, plus tree-count equality. "800" and "800.00" are equal.
func (t Terms) Equal(other Terms) bool {
	if t.TreeCount != other.TreeCount {
		return false
	}
	if t.Rate == "" || other.Rate == "" {
		return t.Rate == other.Rate
	}
	a, errA := decimal.NewFromString(t.Rate)
	b, errB := decimal.NewFromString(other.Rate)
	if errA != nil || errB != nil {
		return t.Rate == other.Rate
	}
	return a.Equal(b)
}

type Proposal struct {
	ProposalID string          `json:"proposal_id" bson:"proposal_id" firestore:"proposal_id"`
	ProposedBy Role            `json:"proposed_by" bson:"proposed_by" firestore:"proposed_by"`
	Terms      Terms           `json:"terms" bson:"terms" firestore:"terms"`
	Notes      string          `json:"notes,omitempty" bson:"notes,omitempty" firestore:"notes,omitempty"`
	ProposedAt time.Time       `json:"proposed_at" bson:"proposed_at" firestore:"proposed_at"`
	Outcome    ProposalOutcome `json:"outcome" bson:"outcome" firestore:"outcome"`
}

// Agreement is the immutable terminal outcome of an accepted proposal.
type Agreement struct {
	AgreedTerms Terms     `json:"agreed_terms" bson:"agreed_terms" firestore:"agreed_terms"`
	AgreedAt    time.Time `json:"agreed_at" bson:"agreed_at" firestore:"agreed_at"`
	AcceptedBy  Role      `json:"accepted_by" bson:"accepted_by" firestore:"accepted_by"`
}

// Negotiation is the aggregate root: one per subject, two fixed parties,
// at most one pending proposal at a time, append-only history.
type Negotiation struct {
	NegotiationID  string `json:"negotiation_id" bson:"negotiation_id" firestore:"negotiation_id"`
	SubjectRef     string `json:"subject_ref" bson:"subject_ref" firestore:"subject_ref"`
	Kind           Kind   `json:"kind" bson:"kind" firestore:"kind"`
	InitiatorID    string `json:"initiator_id" bson:"initiator_id" firestore:"initiator_id"`
	CounterpartyID string `json:"counterparty_id" bson:"counterparty_id" firestore:"counterparty_id"`

	Status          NegotiationStatus `json:"status" bson:"status" firestore:"status"`
	CurrentProposal *Proposal         `json:"current_proposal,omitempty" bson:"current_proposal,omitempty" firestore:"current_proposal,omitempty"`
	History         []Proposal        `json:"history" bson:"history" firestore:"history"`
	FinalAgreement  *Agreement        `json:"final_agreement,omitempty" bson:"final_agreement,omitempty" firestore:"final_agreement,omitempty"`

	// Version increments on every committed transition and drives the
	// store's compare-and-swap.
	Version   int64     `json:"version" bson:"version" firestore:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" firestore:"updated_at"`
}

// RoleOf maps a party id to its role within this negotiation.
func (n Negotiation) RoleOf(partyID string) (Role, bool) {
	switch partyID {
	case n.InitiatorID:
		return RoleInitiator, true
	case n.CounterpartyID:
		return RoleCounterparty, true
	}
	return "", false
}

// PartyID returns the user id holding the given role.
func (n Negotiation) PartyID(role Role) string {
	if role == RoleInitiator {
		return n.InitiatorID
	}
	return n.CounterpartyID
}

// ProposeRequest opens a proposal. CounterpartyID and Kind are consulted
// only when the call creates the negotiation for a fresh subject.
type ProposeRequest struct {
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Kind           Kind   `json:"kind,omitempty"`
	Terms          Terms  `json:"terms"`
	Notes          string `json:"notes,omitempty"`
}

// CounterRequest replaces the other side's pending proposal.
type CounterRequest struct {
	Terms Terms  `json:"terms"`
	Notes string `json:"notes,omitempty"`
}
