package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Receipt is the relay's answer to a submitted mark.
type Receipt struct {
	TxHash string `json:"tx_hash"`
}

// Status is the on-chain attendance summary for one account.
type Status struct {
	HasMarked bool `json:"has_marked"`
	Count     int  `json:"count"`
}

// Client calls the ledger relay, which signs and submits markAttendance
// transactions on our behalf.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. skip short-circuits every call with a stub answer.
func New(baseURL, apiKey string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // block confirmation can be slow
		},
	}
}

// Submit records token on the ledger and returns the transaction hash.
func (c *Client) Submit(ctx context.Context, token string) (Receipt, error) {
	if c.Skip {
		return Receipt{TxHash: "0xskipped"}, nil
	}
	if token == "" {
		return Receipt{}, fmt.Errorf("token required")
	}

	body, _ := json.Marshal(map[string]string{"code": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/attendance/mark", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Receipt
	if err := c.do(req, &out); err != nil {
		return Receipt{}, err
	}
	if out.TxHash == "" {
		return Receipt{}, fmt.Errorf("ledger relay returned no transaction hash")
	}
	return out, nil
}

// Status reads whether account has marked attendance and how many times.
func (c *Client) Status(ctx context.Context, account string) (Status, error) {
	if c.Skip {
		return Status{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/attendance/status/"+url.PathEscape(account), nil)
	if err != nil {
		return Status{}, err
	}
	var out Status
	if err := c.do(req, &out); err != nil {
		return Status{}, err
	}
	return out, nil
}

// Health checks if the relay is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("ledger relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ledger relay error %s: %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
