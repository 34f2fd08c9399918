package counter

import (
	"context"
	"math"
	"time"

	"github.com/arloliu/go-coincounter/internal/pool"
)

// DefaultCoincidenceWindow is the default coincidence window in seconds.
const DefaultCoincidenceWindow = 25e-9

// RateUncertainty holds the Poisson uncertainties of a rate measurement.
type RateUncertainty struct {
	Counts float64
	Rate   float64
	// Relative is the relative count uncertainty in percent.
	Relative float64
}

// RateMeasurement is the result of a single-channel rate measurement.
type RateMeasurement struct {
	Channel     int
	Duration    time.Duration
	Counts      uint64
	Rate        float64
	Uncertainty RateUncertainty
}

// CoincidenceParams configures a coincidence measurement.
// Use DefaultCoincidenceParams to get the standard channel assignment.
type CoincidenceParams struct {
	Duration           time.Duration
	SinglesAChannel    int
	SinglesBChannel    int
	CoincidenceChannel int
	// Window is the coincidence window in seconds.
	Window float64
}

// DefaultCoincidenceParams returns singles on channels 0 and 1, coincidences
// on channel 4 and a 25 ns window.
func DefaultCoincidenceParams(d time.Duration) CoincidenceParams {
	return CoincidenceParams{
		Duration:           d,
		SinglesAChannel:    0,
		SinglesBChannel:    1,
		CoincidenceChannel: 4,
		Window:             DefaultCoincidenceWindow,
	}
}

func (p CoincidenceParams) validate() error {
	if err := validateChannel("singlesAChannel", p.SinglesAChannel); err != nil {
		return err
	}
	if err := validateChannel("singlesBChannel", p.SinglesBChannel); err != nil {
		return err
	}
	if err := validateChannel("coincidenceChannel", p.CoincidenceChannel); err != nil {
		return err
	}
	if p.Duration <= 0 {
		return newValidationError("duration", p.Duration, "must be positive")
	}
	if math.IsNaN(p.Window) || math.IsInf(p.Window, 0) || p.Window < 0 {
		return newValidationError("coincidenceWindow", p.Window, "must be a finite non-negative number of seconds")
	}

	return nil
}

// CoincidenceUncertainty holds the propagated uncertainties of a coincidence measurement.
type CoincidenceUncertainty struct {
	SinglesA            float64
	SinglesB            float64
	Coincidences        float64
	RateA               float64
	RateB               float64
	CoincidenceRate     float64
	AccidentalRate      float64
	TrueCoincidenceRate float64
}

// CoincidenceMeasurement is the result of a coincidence measurement.
type CoincidenceMeasurement struct {
	Params CoincidenceParams

	SinglesA     uint64
	SinglesB     uint64
	Coincidences uint64
	Duration     time.Duration

	RateA           float64
	RateB           float64
	CoincidenceRate float64
	AccidentalRate  float64
	// TrueCoincidenceRate is clamped at zero; its uncertainty is not.
	TrueCoincidenceRate float64

	Uncertainty CoincidenceUncertainty
}

// MeasureRate clears the counters, waits d and returns the rate of channel ch.
// Cancelling ctx during the wait aborts with OperationAbortedError.
func (c *Counter) MeasureRate(ctx context.Context, ch int, d time.Duration) (RateMeasurement, error) {
	if err := validateChannel("channel", ch); err != nil {
		return RateMeasurement{}, err
	}
	if d <= 0 {
		return RateMeasurement{}, newValidationError("duration", d, "must be positive")
	}

	counts, err := c.countOver(ctx, "measureRate", d)
	if err != nil {
		return RateMeasurement{}, err
	}

	return ComputeRate(ch, d, counts.Channels[ch]), nil
}

// MeasureCoincidenceRate clears the counters, waits p.Duration and derives
// singles, coincidence and accidental rates.
func (c *Counter) MeasureCoincidenceRate(ctx context.Context, p CoincidenceParams) (CoincidenceMeasurement, error) {
	if err := p.validate(); err != nil {
		return CoincidenceMeasurement{}, err
	}

	counts, err := c.countOver(ctx, "measureCoincidenceRate", p.Duration)
	if err != nil {
		return CoincidenceMeasurement{}, err
	}

	return ComputeCoincidence(p,
		counts.Channels[p.SinglesAChannel],
		counts.Channels[p.SinglesBChannel],
		counts.Channels[p.CoincidenceChannel],
	), nil
}

// countOver clears the counters, sleeps d and reads them again.
func (c *Counter) countOver(ctx context.Context, op string, d time.Duration) (Counts, error) {
	if err := c.ClearCounters(ctx); err != nil {
		return Counts{}, err
	}

	if err := pool.Sleep(ctx, d); err != nil {
		return Counts{}, newAbortedError(op, err)
	}

	counts, err := c.ReadCounts(ctx)
	if err != nil {
		return Counts{}, err
	}
	if counts.Overflowed() {
		c.logger.Warn("counter overflow during measurement", "op", op, "duration", d)
	}

	return counts, nil
}

// ComputeRate derives a rate and its Poisson uncertainty from counts
// accumulated over d.
func ComputeRate(ch int, d time.Duration, counts uint64) RateMeasurement {
	secs := d.Seconds()
	n := float64(counts)
	sigmaN := math.Sqrt(math.Max(0, n))

	relative := 0.0
	if n > 0 {
		relative = sigmaN / n * 100
	}

	return RateMeasurement{
		Channel:  ch,
		Duration: d,
		Counts:   counts,
		Rate:     n / secs,
		Uncertainty: RateUncertainty{
			Counts:   sigmaN,
			Rate:     sigmaN / secs,
			Relative: relative,
		},
	}
}

// ComputeCoincidence derives coincidence rates with first-order error
// propagation from the raw counts of a measurement described by p.
func ComputeCoincidence(p CoincidenceParams, singlesA, singlesB, coincidences uint64) CoincidenceMeasurement {
	secs := p.Duration.Seconds()
	a, b, cc := float64(singlesA), float64(singlesB), float64(coincidences)

	rateA := a / secs
	rateB := b / secs
	coincRate := cc / secs
	accidental := 2 * p.Window * rateA * rateB

	sigmaA := math.Sqrt(a)
	sigmaB := math.Sqrt(b)
	sigmaC := math.Sqrt(cc)
	sigmaRateC := sigmaC / secs
	sigmaAccidental := (2 * p.Window / secs) * math.Sqrt(math.Pow(rateB*sigmaA, 2)+math.Pow(rateA*sigmaB, 2))

	return CoincidenceMeasurement{
		Params:              p,
		SinglesA:            singlesA,
		SinglesB:            singlesB,
		Coincidences:        coincidences,
		Duration:            p.Duration,
		RateA:               rateA,
		RateB:               rateB,
		CoincidenceRate:     coincRate,
		AccidentalRate:      accidental,
		TrueCoincidenceRate: math.Max(0, coincRate-accidental),
		Uncertainty: CoincidenceUncertainty{
			SinglesA:            sigmaA,
			SinglesB:            sigmaB,
			Coincidences:        sigmaC,
			RateA:               sigmaA / secs,
			RateB:               sigmaB / secs,
			CoincidenceRate:     sigmaRateC,
			AccidentalRate:      sigmaAccidental,
			TrueCoincidenceRate: math.Sqrt(sigmaRateC*sigmaRateC + sigmaAccidental*sigmaAccidental),
		},
	}
}
