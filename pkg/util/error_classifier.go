package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// IsRetryableError decides whether a per-message failure is worth retrying
// on a later cycle or is permanent for this input.
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	errStr := err.Error()

	// JSON decode errors: the classifier returned garbage for this input.
	if _, ok := err.(*json.SyntaxError); ok {
		return true, "classifier_output_error"
	}
	if _, ok := err.(*json.UnmarshalTypeError); ok {
		return true, "classifier_output_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "unique constraint") {
		// Already persisted by a concurrent cycle.
		return false, "duplicate_key"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	if strings.Contains(errStr, "classification service") {
		return true, "classifier_error"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "connection_error"
	}

	return false, "unknown_error"
}
