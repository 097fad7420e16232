package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"leaderboardkit/core"
)

// Leaders mirrors the GET /leaders response.
type Leaders struct {
	Entries []core.ScoreEntry `json:"entries"`
	Max     int               `json:"max"`
	Corrupt int               `json:"corrupt"`
}

// Leaderboard returns the entries as a core.Leaderboard.
func (l Leaders) Leaderboard() core.Leaderboard {
	return core.Leaderboard{Entries: l.Entries, Max: l.Max}
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

type scoreRequest struct {
	Identity string `json:"identity"`
	Score    int64  `json:"score"`
}

type scoreResponse struct {
	Outcome     core.Outcome      `json:"outcome"`
	Entry       core.ScoreEntry   `json:"entry"`
	Leaderboard *core.Leaderboard `json:"leaderboard"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Is maps server error codes onto the core sentinels.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "invalid_input":
		return target == core.ErrInvalidInput
	case "transaction_failed":
		return target == core.ErrTransactionFailed
	case "corrupt_data":
		return target == core.ErrCorruptData
	}
	return false
}

// ErrOutcomePending is reported when the server stopped waiting before the transaction resolved.
var ErrOutcomePending = errors.New("outcome pending")

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
