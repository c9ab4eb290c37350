package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	ReadingsReceived     atomic.Int64
	ValidationFailures   atomic.Int64
	UnscoredReadings     atomic.Int64
	EventsPublished      atomic.Int64
	DuplicatePublishSkip atomic.Int64
	SubscriberDrops      atomic.Int64
	SubscriptionsActive  atomic.Int64
	AlertChannelDrops    atomic.Int64
	AlertsEmitted        atomic.Int64
	AlertInsertFailures  atomic.Int64
	NotificationFailures atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "ecowatch_readings_received_total %d\n", ReadingsReceived.Load())
	fmt.Fprintf(w, "ecowatch_validation_failures_total %d\n", ValidationFailures.Load())
	fmt.Fprintf(w, "ecowatch_unscored_readings_total %d\n", UnscoredReadings.Load())
	fmt.Fprintf(w, "ecowatch_events_published_total %d\n", EventsPublished.Load())
	fmt.Fprintf(w, "ecowatch_duplicate_publish_skips_total %d\n", DuplicatePublishSkip.Load())
	fmt.Fprintf(w, "ecowatch_subscriber_drops_total %d\n", SubscriberDrops.Load())
	fmt.Fprintf(w, "ecowatch_subscriptions_active %d\n", SubscriptionsActive.Load())
	fmt.Fprintf(w, "ecowatch_alert_channel_drops_total %d\n", AlertChannelDrops.Load())
	fmt.Fprintf(w, "ecowatch_alerts_emitted_total %d\n", AlertsEmitted.Load())
	fmt.Fprintf(w, "ecowatch_alert_insert_failures_total %d\n", AlertInsertFailures.Load())
	fmt.Fprintf(w, "ecowatch_notification_failures_total %d\n", NotificationFailures.Load())
}
