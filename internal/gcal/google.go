// Package gcal maintains the calendar-blocker cache from the host's Google
// Calendar. It is strictly a read path for scheduling: blockers flow from
// Google into the cache, never the other way.
package gcal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// OAuthConfig builds the Google OAuth2 config for read-only calendar access,
// or nil when the integration is not configured.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// Fetcher supplies busy events for a time range. The Google implementation
// lives behind this so the syncer is testable without the network.
type Fetcher interface {
	BusyEvents(ctx context.Context, from, to time.Time) ([]Blocker, error)
}

// GoogleFetcher reads events from one calendar of an authorized account.
type GoogleFetcher struct {
	Config     *oauth2.Config
	Token      *oauth2.Token
	CalendarID string // defaults to "primary"
	Location   *time.Location
}

func (g *GoogleFetcher) BusyEvents(ctx context.Context, from, to time.Time) ([]Blocker, error) {
	client := g.Config.Client(ctx, g.Token)
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	calendarID := g.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	events, err := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(2500).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}

	var out []Blocker
	for _, item := range events.Items {
		if item.Status == "cancelled" || item.Transparency == "transparent" {
			continue
		}
		b, ok := eventBlocker(item, loc)
		if !ok {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// eventBlocker converts one calendar event to an absolute busy interval.
// Timed events carry RFC 3339 DateTime; all-day events carry bare dates that
// are expanded to local midnights in the host zone.
func eventBlocker(item *calendar.Event, loc *time.Location) (Blocker, bool) {
	if item.Start == nil || item.End == nil {
		return Blocker{}, false
	}

	if item.Start.DateTime != "" && item.End.DateTime != "" {
		start, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
		end, err2 := time.Parse(time.RFC3339, item.End.DateTime)
		if err1 != nil || err2 != nil || !start.Before(end) {
			return Blocker{}, false
		}
		return Blocker{ID: item.Id, Start: start, End: end}, true
	}

	if item.Start.Date != "" && item.End.Date != "" {
		start, err1 := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		end, err2 := time.ParseInLocation("2006-01-02", item.End.Date, loc)
		if err1 != nil || err2 != nil || !start.Before(end) {
			return Blocker{}, false
		}
		return Blocker{ID: item.Id, Start: start, End: end, AllDay: true}, true
	}

	return Blocker{}, false
}
