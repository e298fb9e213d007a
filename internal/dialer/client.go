package dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrErrorPayload is returned when the dialer answers with its error
// sentinel instead of a status listing. Distinct from transport errors:
// an error payload means the dialer is reachable but reports the campaign
// as having no pollable agents.
var ErrErrorPayload = errors.New("dialer returned error payload")

// AgentStatus is one parsed line of a campaign status listing
type AgentStatus struct {
	ExternalID string
	Status     string
	SubStatus  string
	AcctStatus string
}

// Client wraps the external dialer's HTTP control API. It holds no state
// beyond the HTTP client itself.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a dialer client with the given per-call timeout
func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "dialer").Logger(),
	}
}

// PollStatuses queries the live agent status listing for one campaign
// endpoint. The response body is a newline-separated list of
// "externalId|status|subStatus|acctStatus" tuples. Malformed lines are
// skipped. Not retried: the polling loop will call again next cycle.
func (c *Client) PollStatuses(ctx context.Context, endpoint string) ([]AgentStatus, error) {
	body, err := c.get(ctx, endpoint, url.Values{"function": {"agents_status"}})
	if err != nil {
		return nil, err
	}

	if isErrorPayload(body) {
		return nil, fmt.Errorf("%w: %s", ErrErrorPayload, firstLine(body))
	}

	var statuses []AgentStatus
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 4 {
			c.logger.Debug().Str("line", line).Msg("skipping malformed status line")
			continue
		}
		statuses = append(statuses, AgentStatus{
			ExternalID: strings.TrimSpace(fields[0]),
			Status:     strings.TrimSpace(fields[1]),
			SubStatus:  strings.TrimSpace(fields[2]),
			AcctStatus: strings.TrimSpace(fields[3]),
		})
	}
	return statuses, nil
}

// IsLoggedIn reports whether the agent is currently logged into the given
// campaign endpoint. Retried briefly since it gates the logout call during
// reconciliation.
func (c *Client) IsLoggedIn(ctx context.Context, externalID, endpoint string) (bool, error) {
	var loggedIn bool
	op := func() error {
		body, err := c.get(ctx, endpoint, url.Values{
			"function":   {"agent_logged_in"},
			"agent_user": {externalID},
		})
		if err != nil {
			return err
		}
		if isErrorPayload(body) {
			// Error payload means the dialer does not know the agent;
			// treat as not logged in, stop retrying.
			loggedIn = false
			return nil
		}
		loggedIn = strings.TrimSpace(firstLine(body)) == "1"
		return nil
	}

	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return false, fmt.Errorf("dialer logged-in check failed: %w", err)
	}
	return loggedIn, nil
}

// Logout logs the agent out of the given campaign endpoint
func (c *Client) Logout(ctx context.Context, externalID, endpoint string) error {
	op := func() error {
		body, err := c.get(ctx, endpoint, url.Values{
			"function":   {"log_agent_out"},
			"agent_user": {externalID},
		})
		if err != nil {
			return err
		}
		if isErrorPayload(body) {
			// Already logged out or unknown to the dialer; nothing to do.
			c.logger.Debug().
				Str("external_id", externalID).
				Str("response", firstLine(body)).
				Msg("dialer logout returned error payload")
		}
		return nil
	}

	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return fmt.Errorf("dialer logout failed: %w", err)
	}
	return nil
}

// get performs a GET against endpoint with the given query values
func (c *Client) get(ctx context.Context, endpoint string, values url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid dialer endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dialer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dialer returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read dialer response: %w", err)
	}
	return string(data), nil
}

// retryPolicy bounds retries to two short attempts within the call context
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)
}

func isErrorPayload(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "ERROR")
}

func firstLine(body string) string {
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		return body[:i]
	}
	return body
}
