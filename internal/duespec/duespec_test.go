package duespec

import (
	"errors"
	"testing"
	"time"
)

func TestResolveFixedUnits(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		magnitude int
		unit      Unit
		want      time.Time
	}{
		{name: "seconds", magnitude: 45, unit: Seconds, want: now.Add(45 * time.Second)},
		{name: "minutes", magnitude: 30, unit: Minutes, want: now.Add(30 * time.Minute)},
		{name: "hours", magnitude: 2, unit: Hours, want: now.Add(2 * time.Hour)},
		{name: "days", magnitude: 3, unit: Days, want: now.Add(72 * time.Hour)},
		{name: "weeks", magnitude: 1, unit: Weeks, want: now.Add(7 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(now, tt.magnitude, tt.unit)
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveCalendarUnits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		now       string
		magnitude int
		unit      Unit
		want      string
	}{
		{name: "leap february clamp", now: "2024-01-31T10:00", magnitude: 1, unit: Months, want: "2024-02-29T10:00"},
		{name: "april clamp", now: "2024-03-31T10:00", magnitude: 1, unit: Months, want: "2024-04-30T10:00"},
		{name: "plain month", now: "2024-06-01T12:00", magnitude: 1, unit: Months, want: "2024-07-01T12:00"},
		{name: "year rollover", now: "2024-11-15T08:30", magnitude: 3, unit: Months, want: "2025-02-15T08:30"},
		{name: "year", now: "2024-06-01T12:00", magnitude: 2, unit: Years, want: "2026-06-01T12:00"},
		{name: "leap day plus year", now: "2024-02-29T09:00", magnitude: 1, unit: Years, want: "2025-02-28T09:00"},
	}

	const layout = "2006-01-02T15:04"
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse(layout, tt.now)
			if err != nil {
				t.Fatalf("bad test input: %v", err)
			}
			want, err := time.Parse(layout, tt.want)
			if err != nil {
				t.Fatalf("bad test input: %v", err)
			}
			got, err := Resolve(now, tt.magnitude, tt.unit)
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if !got.Equal(want) {
				t.Fatalf("Resolve = %v, want %v", got, want)
			}
		})
	}
}

func TestResolveInvalidMagnitude(t *testing.T) {
	t.Parallel()
	now := time.Now()
	for _, m := range []int{0, -1, -30} {
		if _, err := Resolve(now, m, Minutes); !errors.Is(err, ErrInvalidMagnitude) {
			t.Fatalf("Resolve(%d) error = %v, want ErrInvalidMagnitude", m, err)
		}
	}
}

func TestParseUnitSynonyms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		token string
		want  Unit
	}{
		{token: "секунд", want: Seconds},
		{token: "минуту", want: Minutes},
		{token: "МИНУТЫ", want: Minutes},
		{token: "часов", want: Hours},
		{token: "день", want: Days},
		{token: "неделю", want: Weeks},
		{token: "месяцев", want: Months},
		{token: "лет", want: Years},
		{token: "hours", want: Hours},
	}

	for _, tt := range tests {
		got, err := ParseUnit(tt.token)
		if err != nil {
			t.Fatalf("ParseUnit(%q) error: %v", tt.token, err)
		}
		if got != tt.want {
			t.Fatalf("ParseUnit(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}

	if _, err := ParseUnit("fortnights"); !errors.Is(err, ErrInvalidUnit) {
		t.Fatalf("expected ErrInvalidUnit, got %v", err)
	}
}
