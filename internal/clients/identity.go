package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IdentityClient resolves Bearer tokens to party ids against the identity
// service. The engine never authenticates; it only receives the resolved
// party id and derives the caller's role from the negotiation itself.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ValidateTokenResponse is the response from the identity service.
type ValidateTokenResponse struct {
	UserID string `json:"user_id"`
	Valid  bool   `json:"valid"`
}

// ResolveParty validates a token and returns the party id it belongs to.
func (c *IdentityClient) ResolveParty(ctx context.Context, token string) (string, error) {
	url := fmt.Sprintf("%s/internal/v1/users/validate-token?token=%s", c.baseURL, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("invalid token: status %d", resp.StatusCode)
	}

	var result ValidateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if !result.Valid {
		return "", fmt.Errorf("invalid token")
	}

	return result.UserID, nil
}
