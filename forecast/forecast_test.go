package forecast

import (
	"errors"
	"math"
	"testing"

	"medreminder/dbtypes"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCompute(t *testing.T) {
	testCases := []struct {
		desc                                    string
		stock, timesPerDay, unitCost, threshold float64
		want                                    Forecast
	}{
		{
			desc:        "Paracetamol at the threshold boundary",
			stock:       20,
			timesPerDay: 2,
			threshold:   10,
			want:        Forecast{DaysRemaining: 10, Tier: TierCritical},
		},
		{
			desc:        "Vitamin D with plenty of stock",
			stock:       100,
			timesPerDay: 1,
			threshold:   10,
			want:        Forecast{DaysRemaining: 100, Tier: TierOK},
		},
		{
			desc:        "Between threshold and horizon",
			stock:       45,
			timesPerDay: 3,
			unitCost:    0.5,
			threshold:   10,
			want:        Forecast{DaysRemaining: 15, MonthlyCost: 45, Tier: TierLow},
		},
		{
			desc:        "Exactly at the horizon",
			stock:       30,
			timesPerDay: 1,
			threshold:   10,
			want:        Forecast{DaysRemaining: 30, Tier: TierLow},
		},
		{
			desc:        "Empty stock",
			timesPerDay: 1,
			threshold:   10,
			want:        Forecast{Tier: TierCritical},
		},
		{
			desc:        "Fractional runway is not rounded",
			stock:       10,
			timesPerDay: 3,
			threshold:   1,
			want:        Forecast{DaysRemaining: 10.0 / 3.0, Tier: TierLow},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := Compute(tc.stock, tc.timesPerDay, tc.unitCost, tc.threshold)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Message == "" {
				t.Errorf("Forecast has no message")
			}
			if diff := cmp.Diff(got, tc.want, cmpopts.IgnoreFields(Forecast{}, "Message")); diff != "" {
				t.Errorf("Bad forecast; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestComputeDaysRemainingIsExact(t *testing.T) {
	for _, stock := range []float64{0, 1, 7, 13.5, 1000} {
		for _, perDay := range []float64{1, 2, 3, 7} {
			got, err := Compute(stock, perDay, 0, 10)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.DaysRemaining != stock/perDay {
				t.Errorf("Compute(%v, %v).DaysRemaining = %v; want %v", stock, perDay, got.DaysRemaining, stock/perDay)
			}
		}
	}
}

func TestComputeDivisionByZero(t *testing.T) {
	for _, perDay := range []float64{0, -1} {
		got, err := Compute(50, perDay, 1, 10)
		if !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Compute with %v doses per day: err = %v; want ErrDivisionByZero", perDay, err)
		}
		if got.Tier != TierCritical || got.DaysRemaining != 0 {
			t.Errorf("Compute with %v doses per day = %+v; want CRITICAL with 0 days", perDay, got)
		}
	}
}

func TestComputeInvalidStock(t *testing.T) {
	for _, stock := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1} {
		got, err := Compute(stock, 1, 1, 10)
		if !errors.Is(err, ErrInvalidStock) {
			t.Errorf("Compute with stock %v: err = %v; want ErrInvalidStock", stock, err)
		}
		if got.Tier != TierCritical || got.DaysRemaining != 0 {
			t.Errorf("Compute with stock %v = %+v; want CRITICAL with 0 days", stock, got)
		}
	}
}

func TestForMedicationUsesOverride(t *testing.T) {
	override := 2.0
	med := &dbtypes.Medication{Stock: 5, TimesPerDay: 1, LowStockThreshold: &override}

	got, err := ForMedication(med, dbtypes.DefaultSettings())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Tier != TierLow {
		t.Errorf("Tier = %v; want LOW with threshold override 2", got.Tier)
	}

	med.LowStockThreshold = nil
	got, err = ForMedication(med, dbtypes.DefaultSettings())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Tier != TierCritical {
		t.Errorf("Tier = %v; want CRITICAL with global threshold 10", got.Tier)
	}
}
