package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// accountServiceTimeout is the plain timeout spec §5 requires on the
// account-service call; gobreaker sits in front of it so a degraded
// account service trips the breaker instead of piling up slow requests.
const accountServiceTimeout = 5 * time.Second

// accountDetails is the JSON shape returned by
// <account-service>/api/v1/account-service/users/details.
type accountDetails struct {
	Identifier string `json:"identifier"`
	Nickname   string `json:"nickname"`
	Email      string `json:"email"`
	PhotoURL   string `json:"photo_url"`
}

// AccountClient looks up participant details from the external account
// service, failing fast via a circuit breaker once the service is degraded.
type AccountClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewAccountClient builds a client against baseURL (§6's account_service_url).
func NewAccountClient(baseURL string) *AccountClient {
	return &AccountClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: accountServiceTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "account-service",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Details fetches a participant's identifier, nickname, email, and photo
// URL. found is false only when the account service reports no such
// identifier (HTTP 404); any other failure, including a tripped breaker, is
// returned as err.
func (c *AccountClient) Details(ctx context.Context, identifier string) (details accountDetails, found bool, err error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, identifier)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return accountDetails{}, false, fmt.Errorf("service: account service unavailable: %w", err)
		}
		return accountDetails{}, false, err
	}

	fetched, ok := result.(*accountDetails)
	if !ok || fetched == nil {
		return accountDetails{}, false, nil
	}
	return *fetched, true, nil
}

func (c *AccountClient) fetch(ctx context.Context, identifier string) (*accountDetails, error) {
	endpoint := c.baseURL + "/api/v1/account-service/users/details?" +
		url.Values{"identifier": {identifier}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("service: building account-service request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("service: calling account service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service: account service returned status %d", resp.StatusCode)
	}

	var details accountDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("service: decoding account service response: %w", err)
	}
	return &details, nil
}
