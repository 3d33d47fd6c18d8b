package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveParty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/v1/users/validate-token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.URL.Query().Get("token") {
		case "tok_farmer":
			_ = json.NewEncoder(w).Encode(ValidateTokenResponse{UserID: "user_farmer", Valid: true})
		case "tok_revoked":
			_ = json.NewEncoder(w).Encode(ValidateTokenResponse{Valid: false})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	client := NewIdentityClient(server.URL)
	ctx := context.Background()

	partyID, err := client.ResolveParty(ctx, "tok_farmer")
	if err != nil {
		t.Fatalf("ResolveParty() error: %v", err)
	}
	if partyID != "user_farmer" {
		t.Errorf("party id = %q, want user_farmer", partyID)
	}

	if _, err := client.ResolveParty(ctx, "tok_revoked"); err == nil {
		t.Error("ResolveParty() with revoked token should fail")
	}

	if _, err := client.ResolveParty(ctx, "tok_unknown"); err == nil {
		t.Error("ResolveParty() with unknown token should fail")
	}
}
