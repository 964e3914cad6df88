package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/calrelay/calrelay/internal/model"
)

// classify maps a provider error into the engine's taxonomy: authorization
// failures become [model.ErrReauthRequired] (never retried), everything else
// is passed through for the transient/permanent check in [IsTransient].
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", model.ErrReauthRequired, err)
		}
	}

	// An expired or revoked refresh token surfaces as an oauth2 retrieve
	// error (typically "invalid_grant") before any API call completes.
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return fmt.Errorf("%w: %v", model.ErrReauthRequired, err)
	}

	return err
}

// IsTransient reports whether an error is worth retrying: provider 5xx,
// rate limiting, and network timeouts. Authorization errors are never
// transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, model.ErrReauthRequired) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500 || apiErr.Code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
