package calendar

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/huddle/internal/model"
)

func testActivity() model.Activity {
	start := time.Date(2026, 7, 4, 16, 0, 0, 0, time.UTC)
	return model.Activity{
		ID:        "a1",
		Title:     "Climb, then tacos; bring gear",
		StartTime: start,
		EndTime:   start.Add(3 * time.Hour),
		Locations: []model.Location{{Name: "Crag", Address: "1 Rock Rd", Latitude: 46.5, Longitude: -112}},
		Notes:     "Line one\nLine two",
	}
}

// unfold joins folded continuation lines.
func unfold(data []byte) string {
	return strings.ReplaceAll(string(data), "\r\n ", "")
}

func TestRender(t *testing.T) {
	e := &ICSExporter{
		Reminder: 30 * time.Minute,
		Now:      func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) },
	}
	data, err := e.Render(testActivity())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := unfold(data)

	for _, want := range []string{
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:a1@huddle",
		"DTSTAMP:20260701T000000Z",
		"DTSTART:20260704T160000Z",
		"DTEND:20260704T190000Z",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER:-PT30M",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}

	cal, err := ics.ParseCalendar(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("parse rendered calendar: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	start, err := events[0].GetStartAt()
	if err != nil || !start.Equal(testActivity().StartTime) {
		t.Errorf("start = %v (%v), want %v", start, err, testActivity().StartTime)
	}
	for _, prop := range []ics.ComponentProperty{ics.ComponentPropertySummary, ics.ComponentPropertyLocation, ics.ComponentPropertyDescription, ics.ComponentPropertyGeo} {
		if events[0].GetProperty(prop) == nil {
			t.Errorf("missing %s", prop)
		}
	}
}

func TestRenderSubMinuteReminder(t *testing.T) {
	data, err := (&ICSExporter{Reminder: 45 * time.Second}).Render(testActivity())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := unfold(data)
	if !strings.Contains(got, "TRIGGER:-PT45S") {
		t.Errorf("expected a seconds trigger:\n%s", got)
	}
	if strings.Contains(got, "-PT0M") {
		t.Error("sub-minute reminder rendered as zero minutes")
	}
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Minute, "-PT30M"},
		{2 * time.Hour, "-PT120M"},
		{90 * time.Second, "-PT90S"},
		{time.Second, "-PT1S"},
	}
	for _, tt := range tests {
		if got := trigger(tt.in); got != tt.want {
			t.Errorf("trigger(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderDefaults(t *testing.T) {
	a := testActivity()
	a.EndTime = time.Time{}
	data, err := (&ICSExporter{}).Render(a)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "DTEND:20260704T170000Z") {
		t.Errorf("expected one hour default duration:\n%s", got)
	}
	if strings.Contains(got, "VALARM") {
		t.Error("alarm rendered with zero reminder")
	}
}

func TestRenderNoStart(t *testing.T) {
	_, err := (&ICSExporter{}).Render(model.Activity{ID: "a1", Title: "x"})
	if !errors.Is(err, ErrNoStartTime) {
		t.Errorf("err = %v, want ErrNoStartTime", err)
	}
}

func TestRenderFoldsLongLines(t *testing.T) {
	a := testActivity()
	a.Title = strings.Repeat("é", 60)
	data, err := (&ICSExporter{}).Render(a)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, l := range strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n") {
		if len(l) > 75 {
			t.Errorf("line of %d octets: %q", len(l), l)
		}
	}
	if !strings.Contains(unfold(data), "SUMMARY:"+a.Title) {
		t.Error("folded summary does not unfold to the title")
	}
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	e := &ICSExporter{Dir: dir}
	if err := e.Export(context.Background(), testActivity()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, err := os.ReadFile(e.Path("a1"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "BEGIN:VCALENDAR\r\n") {
		t.Errorf("unexpected file contents: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}
