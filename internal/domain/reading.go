package domain

import "time"

// SignalStrength is the coarse radio quality a sensor reports with each
// transmission.
type SignalStrength string

const (
	SignalWeak   SignalStrength = "weak"
	SignalMedium SignalStrength = "medium"
	SignalStrong SignalStrength = "strong"
)

// SensorReading is one transmission from a field sensor. Identity is
// (SensorID, Timestamp); re-submitting the same pair overwrites the stored
// entry rather than appending.
type SensorReading struct {
	ReceivedAt time.Time `json:"received_at"`

	SensorID  string    `json:"sensor_id"`
	Timestamp time.Time `json:"timestamp"`

	Activity       string         `json:"activity"`
	Battery        float64        `json:"battery"`
	SignalStrength SignalStrength `json:"signal_strength"`
	IsActive       bool           `json:"is_active"`
	IsTriggered    bool           `json:"is_triggered"`

	// Vibration features consumed by the classifier.
	MaxAmplitude float64 `json:"max_amplitude"`
	RMSRatio     float64 `json:"rms_ratio"`
	PowerRatio   float64 `json:"power_ratio"`
}

// Key identifies the stored entry for this reading.
func (r *SensorReading) Key() ReadingKey {
	return ReadingKey{SensorID: r.SensorID, Timestamp: r.Timestamp.UnixNano()}
}

// ReadingKey is the storage identity of a reading. Timestamps are compared
// at nanosecond precision so the key is usable as a map key.
type ReadingKey struct {
	SensorID  string
	Timestamp int64
}

// AlertLevel buckets alert confidence for downstream consumers.
type AlertLevel string

const (
	AlertLevelHigh   AlertLevel = "high"
	AlertLevelMedium AlertLevel = "medium"
	AlertLevelLow    AlertLevel = "low"
)

// Prediction is the classifier output for exactly one reading. Unscored is
// the sentinel state for a reading whose features could not be scored; such
// a prediction carries no confidence or label.
type Prediction struct {
	SensorID        string     `json:"sensor_id"`
	SourceTimestamp time.Time  `json:"source_timestamp"`
	Confidence      float64    `json:"confidence"`
	ClassLabel      string     `json:"class_label"`
	IsAlert         bool       `json:"is_alert"`
	AlertLevel      AlertLevel `json:"alert_level,omitempty"`
	Unscored        bool       `json:"unscored,omitempty"`
	ScoredAt        time.Time  `json:"scored_at"`
}

// SensorState is the latest reading and prediction for one sensor.
type SensorState struct {
	Reading    SensorReading `json:"reading"`
	Prediction Prediction    `json:"prediction"`
}

// HistoryEntry is one committed (reading, prediction) pair.
type HistoryEntry struct {
	Reading    SensorReading `json:"reading"`
	Prediction Prediction    `json:"prediction"`
}

// Event is the unit of fan-out: a committed reading with its prediction.
// Events are published once per reading key and are immutable after publish.
type Event struct {
	Reading    SensorReading `json:"reading"`
	Prediction Prediction    `json:"prediction"`
}

// AlertEvent is what the alert dispatcher hands to the notification sink.
type AlertEvent struct {
	SensorID   string     `json:"sensor_id"`
	Confidence float64    `json:"confidence"`
	ClassLabel string     `json:"class_label"`
	AlertLevel AlertLevel `json:"alert_level"`
	Timestamp  time.Time  `json:"timestamp"`
}
