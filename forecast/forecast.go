// Package forecast estimates how long a medication's stock will last.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"medreminder/dbtypes"
)

// Tier is a coarse urgency classification of remaining stock.
type Tier int

const (
	TierOK Tier = iota
	TierLow
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierOK:
		return "OK"
	case TierLow:
		return "LOW"
	case TierCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// lowHorizonDays is the runway under which stock is LOW even when it is above
// the configured threshold.
const lowHorizonDays = 30

// daysPerMonth is used for monthly cost estimates.
const daysPerMonth = 30

var (
	ErrDivisionByZero = errors.New("doses per day must be positive")
	ErrInvalidStock   = errors.New("stock must be a finite, non-negative number")
)

type Forecast struct {
	DaysRemaining float64
	MonthlyCost   float64
	Tier          Tier
	Message       string
}

// Compute forecasts the runway of stock consumed timesPerDay doses a day.
//
// If timesPerDay is not positive, Compute returns a CRITICAL forecast with no
// days remaining along with ErrDivisionByZero.  NaN, infinite or negative
// stock gets the same CRITICAL fallback with ErrInvalidStock.
func Compute(stock, timesPerDay, unitCost, threshold float64) (Forecast, error) {
	if math.IsNaN(stock) || math.IsInf(stock, 0) || stock < 0 {
		return Forecast{
			Tier:    TierCritical,
			Message: "Stock level is not a valid number; cannot forecast stock",
		}, ErrInvalidStock
	}
	if math.IsNaN(timesPerDay) || timesPerDay <= 0 {
		return Forecast{
			Tier:    TierCritical,
			Message: "No dosing rate configured; cannot forecast stock",
		}, ErrDivisionByZero
	}

	f := Forecast{
		DaysRemaining: stock / timesPerDay,
		MonthlyCost:   unitCost * timesPerDay * daysPerMonth,
	}

	switch {
	case f.DaysRemaining <= threshold:
		f.Tier = TierCritical
		f.Message = fmt.Sprintf("Only %.0f days left! Refill now.", f.DaysRemaining)
	case f.DaysRemaining <= lowHorizonDays:
		f.Tier = TierLow
		f.Message = fmt.Sprintf("Only %.0f days left; refill soon.", f.DaysRemaining)
	default:
		f.Tier = TierOK
		f.Message = fmt.Sprintf("%.0f days left.", f.DaysRemaining)
	}

	return f, nil
}

// ForMedication forecasts med's stock using its threshold override or the
// global threshold from settings.
func ForMedication(med *dbtypes.Medication, settings *dbtypes.Settings) (Forecast, error) {
	return Compute(med.Stock, float64(med.TimesPerDay), med.UnitCost, med.Threshold(settings))
}
