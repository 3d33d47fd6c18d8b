package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewPublisher(t *testing.T) {
	pub := NewPublisher("rex-negotiation")

	if pub == nil {
		t.Fatal("NewPublisher() returned nil")
	}

	if pub.source != "rex-negotiation" {
		t.Errorf("NewPublisher() source = %v, want rex-negotiation", pub.source)
	}

	if pub.httpClient == nil {
		t.Error("NewPublisher() did not initialize httpClient")
	}

	if pub.endpoints == nil {
		t.Error("NewPublisher() did not initialize endpoints map")
	}
}

func TestPublish_NoWebhook(t *testing.T) {
	pub := NewPublisher("rex-negotiation")
	ctx := context.Background()

	data := map[string]any{
		"negotiation_id": "neg_123",
		"subject_ref":    "service-application:42",
		"actor_role":     "initiator",
	}

	// Should not error even without webhook registered
	err := pub.Publish(ctx, EventProposalSubmitted, data)
	if err != nil {
		t.Errorf("Publish() without webhook error: %v", err)
	}
}

func TestPublish_WithWebhook(t *testing.T) {
	receivedEvent := false
	var receivedEnvelope Envelope

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedEvent = true

		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Missing Content-Type header")
		}
		if r.Header.Get("X-Event-Type") == "" {
			t.Errorf("Missing X-Event-Type header")
		}

		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &receivedEnvelope)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewPublisher("rex-negotiation")
	pub.RegisterEndpoint(EventProposalSubmitted, server.URL)

	ctx := context.Background()
	data := map[string]any{
		"negotiation_id": "neg_123",
		"proposal_id":    "prop_1",
	}

	err := pub.Publish(ctx, EventProposalSubmitted, data)
	if err != nil {
		t.Fatalf("Publish() with webhook error: %v", err)
	}

	if !receivedEvent {
		t.Error("Webhook was not called")
	}

	if receivedEnvelope.EventType != EventProposalSubmitted {
		t.Errorf("Envelope EventType = %v, want %v", receivedEnvelope.EventType, EventProposalSubmitted)
	}

	if receivedEnvelope.Source != "rex-negotiation" {
		t.Errorf("Envelope Source = %v, want rex-negotiation", receivedEnvelope.Source)
	}

	if receivedEnvelope.NegotiationID != "neg_123" {
		t.Errorf("Envelope NegotiationID = %v, want neg_123", receivedEnvelope.NegotiationID)
	}

	if receivedEnvelope.Data["proposal_id"] != "prop_1" {
		t.Errorf("Envelope Data proposal_id = %v, want prop_1", receivedEnvelope.Data["proposal_id"])
	}
}

func TestPublish_WebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := NewPublisher("rex-negotiation")
	pub.RegisterEndpoint(EventProposalAccepted, server.URL)

	ctx := context.Background()
	data := map[string]any{
		"negotiation_id": "neg_123",
	}

	// Should not error even if webhook fails (logged only)
	err := pub.Publish(ctx, EventProposalAccepted, data)
	if err != nil {
		t.Errorf("Publish() should not error on webhook failure, got: %v", err)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	pub := NewPublisher("rex-negotiation")

	pub.RegisterEndpoint(EventProposalRejected, "http://example.com/webhook")

	if pub.endpoints[EventProposalRejected] != "http://example.com/webhook" {
		t.Errorf("RegisterEndpoint() did not register endpoint correctly")
	}
}

func TestPublish_AllEventTypes(t *testing.T) {
	eventTypes := []string{
		EventProposalSubmitted,
		EventProposalAccepted,
		EventProposalRejected,
		EventNegotiationWithdrawn,
	}

	pub := NewPublisher("rex-negotiation")
	ctx := context.Background()

	for _, eventType := range eventTypes {
		t.Run(eventType, func(t *testing.T) {
			data := map[string]any{
				"negotiation_id": "neg_123",
			}

			err := pub.Publish(ctx, eventType, data)
			if err != nil {
				t.Errorf("Publish(%s) error: %v", eventType, err)
			}
		})
	}
}

func TestEnvelope_Structure(t *testing.T) {
	var receivedEnvelope Envelope

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &receivedEnvelope)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewPublisher("rex-negotiation")
	pub.RegisterEndpoint(EventProposalSubmitted, server.URL)

	ctx := context.Background()
	data := map[string]any{
		"negotiation_id": "neg_123",
	}

	err := pub.Publish(ctx, EventProposalSubmitted, data)
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if receivedEnvelope.EventID == "" {
		t.Error("Envelope EventID is empty")
	}

	if receivedEnvelope.SchemaVersion != "1.0" {
		t.Errorf("Envelope SchemaVersion = %v, want 1.0", receivedEnvelope.SchemaVersion)
	}

	if receivedEnvelope.Timestamp.IsZero() {
		t.Error("Envelope Timestamp is zero")
	}

	if receivedEnvelope.IdempotencyKey == "" {
		t.Error("Envelope IdempotencyKey is empty")
	}

	if receivedEnvelope.Data == nil {
		t.Error("Envelope Data is nil")
	}
}

func TestGenerateEventID(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := generateEventID()

		if id == "" {
			t.Error("generateEventID() returned empty string")
		}

		if len(id) < 5 {
			t.Errorf("generateEventID() returned short ID: %v", id)
		}

		if ids[id] {
			t.Errorf("generateEventID() generated duplicate ID: %v", id)
		}

		ids[id] = true
	}
}
