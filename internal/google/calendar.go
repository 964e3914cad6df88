// Package google wraps the Google Calendar API for the sync engine. It
// provides a [Client] with operations aligned to the orchestrator's needs, a
// 3-attempt exponential-backoff [Retry] helper, per-call timeouts, and
// conversion between the wire representation and [model.ExternalEvent].
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/calrelay/calrelay/internal/model"
)

// defaultCallTimeout bounds every provider call so a stuck request surfaces
// as an error instead of holding the per-user run lock indefinitely.
const defaultCallTimeout = 30 * time.Second

// Client provides sync-engine–oriented operations on one Google calendar.
type Client struct {
	svc         *calendar.Service
	calendarID  string
	callTimeout time.Duration
	log         *slog.Logger
}

// NewClient builds an authenticated client for the given calendar. The token
// is loaded from tokenFile; run the auth command first to create it.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, tokenFile, calendarID string) (*Client, error) {
	cfg := OAuthConfig(clientID, clientSecret)

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("loading token from %q: %w (run the auth command first)", tokenFile, err)
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}

	return &Client{
		svc:         svc,
		calendarID:  calendarID,
		callTimeout: defaultCallTimeout,
		log:         logger,
	}, nil
}

// CheckAuth verifies the credential by fetching the calendar's metadata.
// An invalid or expired credential returns [model.ErrReauthRequired].
func (c *Client) CheckAuth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	_, err := c.svc.Calendars.Get(c.calendarID).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	return nil
}

// ListEvents fetches the calendar's events inside [timeMin, timeMax),
// expanding recurring events into single instances the way the sync engine
// expects.
func (c *Client) ListEvents(ctx context.Context, timeMin, timeMax time.Time, maxResults int64) ([]*model.ExternalEvent, error) {
	var items []*calendar.Event
	err := Retry(ctx, defaultMaxAttempts, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		res, err := c.svc.Events.List(c.calendarID).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			MaxResults(maxResults).
			OrderBy("startTime").
			Context(callCtx).
			Do()
		if err != nil {
			return classify(err)
		}
		items = res.Items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	events := make([]*model.ExternalEvent, 0, len(items))
	for _, item := range items {
		events = append(events, toExternalEvent(item))
	}
	c.log.Debug("fetched remote events", "count", len(events), "calendar", c.calendarID)
	return events, nil
}

// InsertEvent creates the draft on the provider and returns the stored event
// with its provider-assigned identifier.
func (c *Client) InsertEvent(ctx context.Context, draft *model.ExternalEvent) (*model.ExternalEvent, error) {
	var created *calendar.Event
	err := Retry(ctx, defaultMaxAttempts, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		res, err := c.svc.Events.Insert(c.calendarID, toProviderEvent(draft)).Context(callCtx).Do()
		if err != nil {
			return classify(err)
		}
		created = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inserting event %q: %w", draft.Summary, err)
	}
	return toExternalEvent(created), nil
}

// UpdateEvent overwrites the remote event's content with the draft.
func (c *Client) UpdateEvent(ctx context.Context, id string, draft *model.ExternalEvent) (*model.ExternalEvent, error) {
	var updated *calendar.Event
	err := Retry(ctx, defaultMaxAttempts, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		res, err := c.svc.Events.Update(c.calendarID, id, toProviderEvent(draft)).Context(callCtx).Do()
		if err != nil {
			return classify(err)
		}
		updated = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating event %s: %w", id, err)
	}
	return toExternalEvent(updated), nil
}

// DeleteEvent removes the remote event.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	err := Retry(ctx, defaultMaxAttempts, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		if err := c.svc.Events.Delete(c.calendarID, id).Context(callCtx).Do(); err != nil {
			return classify(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	return nil
}

// --- OAuth helpers -------------------------------------------------------------

// OAuthConfig returns the OAuth2 config for the desktop auth flow.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     googleauth.Endpoint,
	}
}

// Exchange trades an authorization code for a token.
func Exchange(ctx context.Context, cfg *oauth2.Config, authCode string) (*oauth2.Token, error) {
	token, err := cfg.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", classify(err))
	}
	return token, nil
}

// SaveToken writes a token to path with owner-only permissions, creating the
// parent directory if needed.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return token, nil
}
