// Package gcal creates calendar events and task-list entries from the
// schedules extracted out of children's school letters.
package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/Veraticus/paperflow/internal/model"
)

// eventTimeZone anchors timed events; dates in school letters are local.
const eventTimeZone = "Asia/Tokyo"

// Calendar implements service.Calendar on the Google Calendar API.
type Calendar struct {
	svc        *calendar.Service
	calendarID string
	logger     *slog.Logger
}

// NewCalendar creates a Calendar writing to calendarID ("primary" for the
// account's default calendar).
func NewCalendar(ctx context.Context, client *http.Client, calendarID string, logger *slog.Logger) (*Calendar, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendar{svc: svc, calendarID: calendarID, logger: logger}, nil
}

// CreateEvent inserts one event. Events without a start time become all-day
// events; events without an end time default to one hour.
func (c *Calendar) CreateEvent(ctx context.Context, event model.Event, notes string) (string, error) {
	description := event.Description
	if notes != "" {
		if description != "" {
			description += "\n\n"
		}
		description += notes
	}

	body := &calendar.Event{
		Summary:     event.Title,
		Description: description,
		Location:    event.Location,
	}

	if event.StartTime != "" {
		start, err := parseDateTime(event.Date, event.StartTime)
		if err != nil {
			return "", fmt.Errorf("failed to parse start time: %w", err)
		}
		end := start.Add(time.Hour)
		if event.EndTime != "" {
			end, err = parseDateTime(event.Date, event.EndTime)
			if err != nil {
				return "", fmt.Errorf("failed to parse end time: %w", err)
			}
		}
		body.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: eventTimeZone}
		body.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: eventTimeZone}
	} else {
		start, err := parseDate(event.Date)
		if err != nil {
			return "", fmt.Errorf("failed to parse event date: %w", err)
		}
		// All-day events end on the following day, exclusive.
		end := start.AddDate(0, 0, 1)
		body.Start = &calendar.EventDateTime{Date: start.Format("2006-01-02")}
		body.End = &calendar.EventDateTime{Date: end.Format("2006-01-02")}
	}

	created, err := c.svc.Events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	c.logger.Info("calendar event created", "title", event.Title, "date", event.Date)
	return created.HtmlLink, nil
}

func parseDate(date string) (time.Time, error) {
	loc, err := time.LoadLocation(eventTimeZone)
	if err != nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, date, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", date)
}

func parseDateTime(date, clock string) (time.Time, error) {
	day, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
