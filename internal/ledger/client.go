// Package ledger is the typed HTTP client for the external ledger service.
// Amounts cross the wire as exact decimal strings; nothing in this package
// touches binary floating point.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mide-ajayi/transflow/internal/domain"
	"github.com/mide-ajayi/transflow/internal/logging"
	"github.com/mide-ajayi/transflow/internal/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	caller     *resilience.Caller
}

// NewClient wraps the ledger base URL with the given resilient caller. The
// caller owns timeout, retry, and breaker policy; the raw http.Client carries
// a generous ceiling only as a last line of defense.
func NewClient(baseURL string, caller *resilience.Caller) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		caller: caller,
	}
}

type accountResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type balanceRequest struct {
	Amount           string `json:"amount"`
	IdempotencyToken string `json:"idempotencyToken"`
	Description      string `json:"description"`
}

type balanceResponse struct {
	ConfirmationID string `json:"confirmationId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetAccount fetches the account projection used by validation.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var acct *domain.Account

	err := c.caller.Call(ctx, func(ctx context.Context) error {
		url := fmt.Sprintf("%s/accounts/%s", c.baseURL, accountID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("account %s: %w", accountID, domain.ErrAccountNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return statusError(resp)
		}

		var body accountResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}

		balance, err := decimal.NewFromString(body.Balance)
		if err != nil {
			return fmt.Errorf("parse balance %q: %w", body.Balance, err)
		}

		acct = &domain.Account{
			ID:       body.ID,
			Status:   domain.AccountStatus(body.Status),
			Balance:  balance,
			Currency: domain.Currency(body.Currency),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acct, nil
}

// AdjustBalance posts a signed amount to an account. The ledger deduplicates
// on idempotencyToken, so replaying the same mutation after a crash is safe.
func (c *Client) AdjustBalance(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyToken, description string) (string, error) {
	log := logging.FromContext(ctx)

	payload, err := json.Marshal(balanceRequest{
		Amount:           amount.String(),
		IdempotencyToken: idempotencyToken,
		Description:      description,
	})
	if err != nil {
		return "", fmt.Errorf("AdjustBalance: marshal: %w", err)
	}

	var confirmationID string
	err = c.caller.Call(ctx, func(ctx context.Context) error {
		url := fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, accountID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
		}
		defer resp.Body.Close()

		log.Debug("ledger mutation response",
			"account", accountID,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return statusError(resp)
		}

		var body balanceResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode confirmation: %w", err)
		}
		if body.ConfirmationID == "" {
			return fmt.Errorf("ledger returned empty confirmation id")
		}
		confirmationID = body.ConfirmationID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("AdjustBalance: %w", err)
	}
	return confirmationID, nil
}

// statusError maps ledger HTTP statuses onto the error taxonomy: 4xx are
// client errors the caller must not retry, everything else is transient.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrAccountNotFound
	case http.StatusUnprocessableEntity:
		switch body.Error {
		case "insufficient_funds":
			return domain.ErrInsufficientFunds
		case "account_inactive":
			return domain.ErrAccountInactive
		case "currency_mismatch":
			return domain.ErrCurrencyMismatch
		}
		return fmt.Errorf("ledger rejected request: %w", domain.ErrAccountInactive)
	case http.StatusBadRequest:
		return fmt.Errorf("ledger rejected request %q: %w", body.Error, domain.ErrInvalidAmount)
	}

	return fmt.Errorf("ledger status %d: %w", resp.StatusCode, domain.ErrDependencyUnavailable)
}
