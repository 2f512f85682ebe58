// Package calendar exports activities to the device calendar as iCalendar
// files. The export is one-way; nothing is read back.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/huddle/internal/model"
)

const (
	productID       = "-//huddle//activity export//EN"
	defaultDuration = time.Hour
)

var ErrNoStartTime = errors.New("activity has no start time")

// Exporter hands an activity to the calendar integration.
type Exporter interface {
	Export(ctx context.Context, a model.Activity) error
}

// ICSExporter writes one VEVENT file per activity into Dir, where the OS
// calendar integration picks it up.
type ICSExporter struct {
	Dir string
	// Reminder is how long before the start the alarm fires; zero disables
	// the alarm.
	Reminder time.Duration
	Now      func() time.Time
}

// Path returns the file an activity is exported to.
func (e *ICSExporter) Path(activityID string) string {
	return filepath.Join(e.Dir, activityID+".ics")
}

func (e *ICSExporter) Export(ctx context.Context, a model.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := e.Render(a)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return fmt.Errorf("create calendar dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.Dir, ".export-*.ics")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write calendar file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close calendar file: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.Path(a.ID)); err != nil {
		return fmt.Errorf("rename calendar file: %w", err)
	}
	return nil
}

// Render produces the iCalendar document for a.
func (e *ICSExporter) Render(a model.Activity) ([]byte, error) {
	if a.StartTime.IsZero() {
		return nil, fmt.Errorf("export %s: %w", a.ID, ErrNoStartTime)
	}
	end := a.EndTime
	if end.IsZero() || !end.After(a.StartTime) {
		end = a.StartTime.Add(defaultDuration)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	cal := ics.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)

	event := cal.AddEvent(a.ID + "@huddle")
	event.SetDtStampTime(now().UTC())
	event.SetStartAt(a.StartTime.UTC())
	event.SetEndAt(end.UTC())
	event.SetSummary(a.Title)
	if loc := locationText(a.Locations); loc != "" {
		event.SetLocation(loc)
	}
	if len(a.Locations) > 0 && (a.Locations[0].Latitude != 0 || a.Locations[0].Longitude != 0) {
		event.SetGeo(a.Locations[0].Latitude, a.Locations[0].Longitude)
	}
	if a.Notes != "" {
		event.SetDescription(a.Notes)
	}
	if e.Reminder > 0 {
		alarm := event.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.SetProperty(ics.ComponentPropertyDescription, a.Title)
		alarm.SetTrigger(trigger(e.Reminder))
	}
	return []byte(cal.Serialize()), nil
}

// trigger renders a reminder as a negative iCalendar duration, in minutes
// when it is a whole number of them and in seconds otherwise.
func trigger(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("-PT%dM", int64(d/time.Minute))
	}
	return fmt.Sprintf("-PT%dS", int64(d.Round(time.Second)/time.Second))
}

func locationText(locs []model.Location) string {
	if len(locs) == 0 {
		return ""
	}
	l := locs[0]
	switch {
	case l.Name != "" && l.Address != "":
		return l.Name + ", " + l.Address
	case l.Name != "":
		return l.Name
	}
	return l.Address
}
