package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultAttempts = 3

// WalletClient funds bets from a custodial wallet service over HTTP.
// Transient failures are retried internally with a linear backoff; the caller
// only ever sees the terminal outcome.
type WalletClient struct {
	BaseURL  string
	PlayerID string
	HTTP     *http.Client
	Log      *zap.Logger

	// Attempts bounds internal retries on transient failures.
	Attempts int
}

func NewWalletClient(baseURL, playerID string, log *zap.Logger) *WalletClient {
	return &WalletClient{
		BaseURL:  baseURL,
		PlayerID: playerID,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		Log:      log,
		Attempts: defaultAttempts,
	}
}

type debitRequest struct {
	PlayerID string  `json:"player_id"`
	Amount   float64 `json:"amount"`
}

type debitResponse struct {
	ConfirmationID string `json:"confirmation_id"`
	Error          string `json:"error,omitempty"`
}

// Submit asks the wallet to reserve the stake. Returns the wallet's
// confirmation id, or a classified *Error.
func (c *WalletClient) Submit(ctx context.Context, amount float64) (string, error) {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		id, err := c.submitOnce(ctx, amount)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
		c.Log.Warn("wallet debit attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", &Error{Class: ClassTransient, Reason: "canceled", Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return "", lastErr
}

func (c *WalletClient) submitOnce(ctx context.Context, amount float64) (string, error) {
	body, _ := json.Marshal(debitRequest{PlayerID: c.PlayerID, Amount: amount})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/wallet/debit", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Class: ClassFatal, Reason: "bad request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", &Error{Class: ClassTransient, Reason: "wallet unreachable", Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode < 300:
		var out debitResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return "", &Error{Class: ClassFatal, Reason: "bad wallet response", Err: err}
		}
		if out.ConfirmationID == "" {
			return "", &Error{Class: ClassFatal, Reason: "wallet returned no confirmation id"}
		}
		return out.ConfirmationID, nil
	case res.StatusCode == http.StatusPaymentRequired || res.StatusCode == http.StatusForbidden:
		return "", &Error{Class: ClassUserDeclined, Reason: fmt.Sprintf("wallet declined: http %d", res.StatusCode)}
	case res.StatusCode >= 500:
		return "", &Error{Class: ClassTransient, Reason: fmt.Sprintf("wallet http %d", res.StatusCode)}
	default:
		return "", &Error{Class: ClassFatal, Reason: fmt.Sprintf("wallet http %d", res.StatusCode)}
	}
}
