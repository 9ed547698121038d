package revocation

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client revokes tokens at a provider's RFC 7009 revocation endpoint.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a revocation client. A nil httpClient falls back to a
// client with a 30 second timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// Revoke invalidates a refresh token at the given endpoint. Revocation is
// best-effort by nature: callers decide whether a failure here is fatal.
func (c *Client) Revoke(ctx context.Context, endpoint, clientID, token string) error {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"refresh_token"},
		"client_id":       {clientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "building revocation request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("revocation endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
