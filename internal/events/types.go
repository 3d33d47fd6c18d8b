package events

import "time"

// Envelope wraps every emitted event.
type Envelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	NegotiationID  string         `json:"negotiation_id,omitempty"`
	Data           map[string]any `json:"data"`
}

// ProposalSubmittedData covers both the opening proposal and counters;
// Countered distinguishes the two.
type ProposalSubmittedData struct {
	NegotiationID string `json:"negotiation_id"`
	SubjectRef    string `json:"subject_ref"`
	ProposalID    string `json:"proposal_id"`
	ActorRole     string `json:"actor_role"`
	Rate          string `json:"rate,omitempty"`
	TreeCount     int64  `json:"tree_count"`
	Countered     bool   `json:"countered"`
}

type ProposalAcceptedData struct {
	NegotiationID   string `json:"negotiation_id"`
	SubjectRef      string `json:"subject_ref"`
	ProposalID      string `json:"proposal_id"`
	ActorRole       string `json:"actor_role"`
	AgreedRate      string `json:"agreed_rate,omitempty"`
	AgreedTreeCount int64  `json:"agreed_tree_count"`
}

type ProposalRejectedData struct {
	NegotiationID string `json:"negotiation_id"`
	SubjectRef    string `json:"subject_ref"`
	ProposalID    string `json:"proposal_id"`
	ActorRole     string `json:"actor_role"`
}

type NegotiationWithdrawnData struct {
	NegotiationID string `json:"negotiation_id"`
	SubjectRef    string `json:"subject_ref"`
	ActorRole     string `json:"actor_role"`
}

// Event type constants
const (
	EventProposalSubmitted    = "negotiation.proposal_submitted"
	EventProposalAccepted     = "negotiation.proposal_accepted"
	EventProposalRejected     = "negotiation.proposal_rejected"
	EventNegotiationWithdrawn = "negotiation.withdrawn"
)
