package core

import (
	"testing"
	"time"
)

type countingDelay struct {
	calls []uint8
}

func (d *countingDelay) Delay(n uint8) {
	d.calls = append(d.calls, n)
}

func TestUnitForSpeed(t *testing.T) {
	testCases := []struct {
		hz       uint32
		expected time.Duration
	}{
		{100000, 5 * time.Microsecond / (HalfPeriod + 1)},
		{400000, 5 * time.Microsecond / (HalfPeriod + 1)}, // clamped to standard mode
		{0, 5 * time.Microsecond / (HalfPeriod + 1)},
		{10000, 50 * time.Microsecond / (HalfPeriod + 1)},
	}

	for _, tc := range testCases {
		if got := UnitForSpeed(tc.hz); got != tc.expected {
			t.Errorf("UnitForSpeed(%d): expected %v, got %v", tc.hz, tc.expected, got)
		}
	}
}

func TestDefaultUnitMeetsTiming(t *testing.T) {
	half := time.Duration(HalfPeriod+1) * DefaultUnit
	if half < 4700*time.Nanosecond {
		t.Errorf("Half period %v is shorter than 4.7µs", half)
	}

	settle := time.Duration(FinalSettleCount) * time.Duration(FinalSettle+1) * DefaultUnit
	if settle < 5*time.Millisecond {
		t.Errorf("Final settle %v is shorter than the 5ms write cycle", settle)
	}
}

func TestSettleDelay(t *testing.T) {
	d := &countingDelay{}
	SettleDelay(d, FinalSettle, 3)

	if len(d.calls) != 3 {
		t.Fatalf("Expected 3 delays, got %d", len(d.calls))
	}
	for _, n := range d.calls {
		if n != FinalSettle {
			t.Errorf("Expected Delay(%d), got Delay(%d)", FinalSettle, n)
		}
	}
}

func TestBusyDelay(t *testing.T) {
	d := NewBusyDelay(10 * time.Microsecond)
	start := time.Now()
	d.Delay(9)
	if elapsed := time.Since(start); elapsed < 100*time.Microsecond {
		t.Errorf("Delay(9) at 10µs returned after %v", elapsed)
	}

	if NewBusyDelay(0).Unit != DefaultUnit {
		t.Error("Zero unit should default to DefaultUnit")
	}
}

func TestSettleCount(t *testing.T) {
	testCases := []struct {
		name     string
		del      Delayer
		d        time.Duration
		min      int
		expected int
	}{
		{"unknown unit keeps the minimum", &countingDelay{}, 5 * time.Millisecond, 10, 10},
		{"default unit", NewBusyDelay(DefaultUnit), 5 * time.Millisecond, 10, 10},
		{"short unit stretches", NewBusyDelay(UnitForSpeed(100000)), 5 * time.Millisecond, 10, 24},
		{"long unit keeps the minimum", NewBusyDelay(10 * time.Microsecond), 5 * time.Millisecond, 10, 10},
		{"no write cycle", NewBusyDelay(time.Nanosecond), 0, 3, 3},
		{"exact multiple", NewBusyDelay(time.Microsecond), 512 * time.Microsecond, 0, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SettleCount(tc.del, FinalSettle, tc.d, tc.min); got != tc.expected {
				t.Errorf("Expected %d settles, got %d", tc.expected, got)
			}
		})
	}
}
