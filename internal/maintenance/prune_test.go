package maintenance

import (
	"testing"
	"time"
)

func TestPruneCutoff_UTC(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)

	cutoff, err := pruneCutoff(now, 7, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	if !cutoff.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, cutoff)
	}
}

func TestPruneCutoff_Timezone(t *testing.T) {
	// 01:00 UTC on June 15 is still June 14 in New York; the cutoff day
	// must follow the configured zone, not UTC.
	now := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)

	cutoff, err := pruneCutoff(now, 1, "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loc, _ := time.LoadLocation("America/New_York")
	want := time.Date(2025, 6, 13, 0, 0, 0, 0, loc)
	if !cutoff.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, cutoff)
	}
}

func TestPruneCutoff_BadTimezone(t *testing.T) {
	_, err := pruneCutoff(time.Now(), 7, "Not/A/Real/Zone")
	if err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}
