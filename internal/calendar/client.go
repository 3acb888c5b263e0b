// Package calendar implements the calendar_* tool family against the
// Google Calendar v3 REST API.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/httpkit"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Event is one calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	Location    string    `json:"location"`
	Attendees   []string  `json:"attendees"`
}

// Client talks to the Calendar API for the primary calendar. Requests
// carry OAuth2 bearer tokens from the token source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Calendar API client authenticated by ts.
func NewClient(cfg config.GoogleConfig, ts oauth2.TokenSource, logger *slog.Logger) *Client {
	base := cfg.CalendarURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   httpkit.NewTransport(),
			},
		},
		logger: logger,
	}
}

// Wire types for the events collection.
type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventResource struct {
	ID          string     `json:"id,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       *eventTime `json:"start,omitempty"`
	End         *eventTime `json:"end,omitempty"`
	Attendees   []struct {
		Email string `json:"email"`
	} `json:"attendees,omitempty"`
}

// ListEvents returns events on the primary calendar between from and
// to, expanded to single instances ordered by start time.
func (c *Client) ListEvents(ctx context.Context, from, to time.Time, maxResults int) ([]Event, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	q := url.Values{}
	q.Set("timeMin", from.UTC().Format(time.RFC3339))
	q.Set("timeMax", to.UTC().Format(time.RFC3339))
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	u := c.baseURL + "/calendars/primary/events?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.logger.Debug("listing calendar events", "from", from, "to", to, "max", maxResults)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var body struct {
		Items []eventResource `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]Event, 0, len(body.Items))
	for _, item := range body.Items {
		events = append(events, fromResource(item))
	}
	return events, nil
}

// CreateEvent inserts an event on the primary calendar and returns its
// ID. Times are sent as UTC dateTime values.
func (c *Client) CreateEvent(ctx context.Context, title string, start, end time.Time, description, location string) (string, error) {
	res := eventResource{
		Summary:     title,
		Description: description,
		Location:    location,
		Start:       &eventTime{DateTime: start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &eventTime{DateTime: end.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	u := c.baseURL + "/calendars/primary/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("creating calendar event", "title", title, "start", start)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("calendar API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var created eventResource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return created.ID, nil
}

// fromResource converts a wire event. All-day events carry a bare date
// instead of a dateTime.
func fromResource(r eventResource) Event {
	e := Event{
		ID:          r.ID,
		Title:       r.Summary,
		Description: r.Description,
		Location:    r.Location,
	}
	if r.Start != nil {
		e.Start = parseEventTime(*r.Start)
	}
	if r.End != nil {
		e.End = parseEventTime(*r.End)
	}
	for _, a := range r.Attendees {
		e.Attendees = append(e.Attendees, a.Email)
	}
	return e
}

func parseEventTime(et eventTime) time.Time {
	if et.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, et.DateTime); err == nil {
			return t
		}
	}
	if et.Date != "" {
		if t, err := time.Parse("2006-01-02", et.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
