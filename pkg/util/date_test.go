package util

import (
	"testing"
	"time"
)

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01", "20240301", "2024-03-01T15:04:05+09:00"} {
		got, err := ParseDate(s)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", s, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := ParseDate("03/01/2024"); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if got := ParseDateDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestEachDayInclusive(t *testing.T) {
	from := time.Date(2024, 2, 28, 13, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var days []string
	if err := EachDay(from, to, func(d time.Time) error {
		days = append(days, d.Format(DateLayout))
		return nil
	}); err != nil {
		t.Fatalf("EachDay: %v", err)
	}
	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	if len(days) != len(want) {
		t.Fatalf("got %v, want %v", days, want)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("got %v, want %v", days, want)
		}
	}
}

func TestRoundAndTrunc(t *testing.T) {
	if got := Round(-0.125, 2); got != -0.13 {
		t.Fatalf("Round(-0.125, 2) = %v", got)
	}
	if got := Trunc(0.1239, 3); got != 0.123 {
		t.Fatalf("Trunc(0.1239, 3) = %v", got)
	}
	if got := Trunc(0.0999, 3); got != 0.099 {
		t.Fatalf("Trunc(0.0999, 3) = %v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a, ,b,c ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("SplitCSV = %v", got)
	}
}
