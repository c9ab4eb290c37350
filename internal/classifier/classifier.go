// Package classifier scores vibration features for signs of mining
// activity. The model is a fixed band-membership scorer distilled from the
// trained artifact's observed thresholds: mining shows up as very small
// amplitudes (roughly 10-14 microunits) with a consistent RMS ratio around
// 0.55-0.75 and a low power ratio, while normal ground activity sits at
// amplitudes an order of magnitude higher.
package classifier

import (
	"math"
	"time"

	"ecowatch/monitor/internal/domain"
)

// Feature bands. Each trapezoid is (support lo, core lo, core hi, support hi):
// membership is 1 inside the core, 0 outside the support, linear between.
var (
	ampBand   = band{6e-6, 8e-6, 1.6e-5, 3e-5}
	rmsBand   = band{0.45, 0.55, 0.75, 0.85}
	powerBand = band{0.02, 0.04, 0.12, 0.16}
)

// Logistic weights. Amplitude doubles as a hard gate: anything outside its
// support scores zero no matter how suspicious the ratios look.
const (
	wAmp   = 2.6
	wRMS   = 2.4
	wPower = 1.6
	bias   = 6.27
)

type band struct {
	supportLo, coreLo, coreHi, supportHi float64
}

func (b band) membership(v float64) float64 {
	switch {
	case v <= b.supportLo || v >= b.supportHi:
		return 0
	case v < b.coreLo:
		return (v - b.supportLo) / (b.coreLo - b.supportLo)
	case v > b.coreHi:
		return (b.supportHi - v) / (b.supportHi - b.coreHi)
	default:
		return 1
	}
}

// Result is one scoring outcome.
type Result struct {
	Confidence float64
	Label      string
	IsAlert    bool
	Level      domain.AlertLevel
}

// Model holds the decision threshold and output labels. The zero value is
// not usable; construct with Default.
type Model struct {
	Threshold   float64
	MiningLabel string
	NormalLabel string
}

// Default returns the model with the shipped configuration: threshold 0.5,
// labels "mining" and "normal".
func Default() *Model {
	return &Model{Threshold: 0.5, MiningLabel: "mining", NormalLabel: "normal"}
}

// Score maps the three vibration features to a mining confidence in [0,1]
// and a class label. Pure and deterministic; returns
// *domain.InvalidFeatureError for negative or non-finite inputs.
func (m *Model) Score(maxAmplitude, rmsRatio, powerRatio float64) (Result, error) {
	if err := checkFeature("max_amplitude", maxAmplitude); err != nil {
		return Result{}, err
	}
	if err := checkFeature("rms_ratio", rmsRatio); err != nil {
		return Result{}, err
	}
	if err := checkFeature("power_ratio", powerRatio); err != nil {
		return Result{}, err
	}

	gAmp := ampBand.membership(maxAmplitude)
	gRMS := rmsBand.membership(rmsRatio)
	gPower := powerBand.membership(powerRatio)

	conf := gAmp * sigmoid(wAmp*gAmp+wRMS*gRMS+wPower*gPower-bias)

	res := Result{Confidence: conf, Label: m.NormalLabel}
	if conf >= m.Threshold {
		res.Label = m.MiningLabel
		res.IsAlert = true
		if conf > 0.8 {
			res.Level = domain.AlertLevelHigh
		} else {
			res.Level = domain.AlertLevelMedium
		}
	}
	return res, nil
}

// Predict scores a reading and wraps the result as a Prediction stamped at
// now.
func (m *Model) Predict(r *domain.SensorReading, now time.Time) (domain.Prediction, error) {
	res, err := m.Score(r.MaxAmplitude, r.RMSRatio, r.PowerRatio)
	if err != nil {
		return domain.Prediction{}, err
	}
	return domain.Prediction{
		SensorID:        r.SensorID,
		SourceTimestamp: r.Timestamp,
		Confidence:      res.Confidence,
		ClassLabel:      res.Label,
		IsAlert:         res.IsAlert,
		AlertLevel:      res.Level,
		ScoredAt:        now,
	}, nil
}

func checkFeature(name string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return &domain.InvalidFeatureError{Feature: name, Value: v}
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
