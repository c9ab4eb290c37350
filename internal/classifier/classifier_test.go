package classifier_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"ecowatch/monitor/internal/classifier"
	"ecowatch/monitor/internal/domain"
)

func TestScoreMiningSignature(t *testing.T) {
	m := classifier.Default()
	res, err := m.Score(0.000012, 0.55, 0.10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confidence < 0.5 {
		t.Fatalf("mining signature scored %.3f, want >= 0.5", res.Confidence)
	}
	if res.Label != "mining" || !res.IsAlert {
		t.Fatalf("expected mining alert, got %+v", res)
	}
	if res.Level != domain.AlertLevelMedium {
		t.Fatalf("expected medium alert level for %.3f, got %q", res.Confidence, res.Level)
	}
}

func TestScoreNormalSignature(t *testing.T) {
	m := classifier.Default()
	res, err := m.Score(0.001, 1.0, 0.20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confidence >= 0.05 {
		t.Fatalf("normal signature scored %.3f, want < 0.05", res.Confidence)
	}
	if res.Label != "normal" || res.IsAlert {
		t.Fatalf("expected normal non-alert, got %+v", res)
	}
}

func TestScoreHighAmplitudeNeverAlerts(t *testing.T) {
	// High amplitude with a mining-looking RMS ratio must stay quiet.
	m := classifier.Default()
	for _, amp := range []float64{8e-5, 2e-4, 1e-3, 0.5} {
		res, err := m.Score(amp, 0.7, 0.10)
		if err != nil {
			t.Fatalf("amp=%v: unexpected error: %v", amp, err)
		}
		if res.Confidence >= 0.05 {
			t.Fatalf("amp=%v scored %.3f, want < 0.05", amp, res.Confidence)
		}
	}
}

func TestScoreConfidenceRange(t *testing.T) {
	m := classifier.Default()
	amps := []float64{0, 5e-6, 1e-5, 1.2e-5, 2e-5, 8e-5, 1e-3}
	rmss := []float64{0, 0.4, 0.55, 0.7, 1.0, 2.0}
	powers := []float64{0, 0.04, 0.10, 0.2, 0.5}
	for _, a := range amps {
		for _, r := range rmss {
			for _, p := range powers {
				res, err := m.Score(a, r, p)
				if err != nil {
					t.Fatalf("score(%v,%v,%v): %v", a, r, p, err)
				}
				if res.Confidence < 0 || res.Confidence > 1 {
					t.Fatalf("score(%v,%v,%v) confidence %v out of [0,1]", a, r, p, res.Confidence)
				}
				if res.Label == "" {
					t.Fatalf("score(%v,%v,%v) returned empty label", a, r, p)
				}
			}
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	m := classifier.Default()
	first, err := m.Score(0.000012, 0.60, 0.08)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := m.Score(0.000012, 0.60, 0.08)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("score not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestScoreRejectsOutOfDomainFeatures(t *testing.T) {
	m := classifier.Default()
	cases := []struct {
		name    string
		a, r, p float64
		feature string
	}{
		{"negative amplitude", -1e-5, 0.5, 0.1, "max_amplitude"},
		{"nan rms", 1e-5, math.NaN(), 0.1, "rms_ratio"},
		{"inf power", 1e-5, 0.5, math.Inf(1), "power_ratio"},
		{"negative power", 1e-5, 0.5, -0.1, "power_ratio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Score(tc.a, tc.r, tc.p)
			var fe *domain.InvalidFeatureError
			if !errors.As(err, &fe) {
				t.Fatalf("expected InvalidFeatureError, got %v", err)
			}
			if fe.Feature != tc.feature {
				t.Fatalf("expected feature %q, got %q", tc.feature, fe.Feature)
			}
		})
	}
}

func TestPredictStampsSourceReading(t *testing.T) {
	m := classifier.Default()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &domain.SensorReading{
		SensorID:     "SENSOR_001",
		Timestamp:    now.Add(-time.Minute),
		MaxAmplitude: 0.000012,
		RMSRatio:     0.55,
		PowerRatio:   0.10,
	}
	p, err := m.Predict(r, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SensorID != r.SensorID || !p.SourceTimestamp.Equal(r.Timestamp) {
		t.Fatalf("prediction not bound to reading: %+v", p)
	}
	if !p.ScoredAt.Equal(now) {
		t.Fatalf("expected scored_at %v, got %v", now, p.ScoredAt)
	}
	if !p.IsAlert {
		t.Fatalf("expected alert prediction, got %+v", p)
	}
}
