// Posts synthetic sensor traffic at the ingestion endpoint. Three
// signature profiles taken from the model's threshold analysis: mining
// (tiny amplitude, consistent RMS, low power), borderline, and normal
// background activity.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"ecowatch/monitor/internal/domain"
)

type profile struct {
	name         string
	activity     string
	triggered    bool
	maxAmplitude float64
	rmsRatio     float64
	powerRatio   float64
}

var profiles = []profile{
	{"mining", "excavation", true, 0.000012, 0.55, 0.10},
	{"borderline", "vibration", true, 0.000020, 0.70, 0.12},
	{"normal", "idle", false, 0.001000, 1.00, 0.20},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "monitor base URL")
	sensors := flag.Int("sensors", 5, "number of simulated sensors")
	interval := flag.Duration("interval", 2*time.Second, "delay between rounds")
	rounds := flag.Int("rounds", 0, "rounds to send, 0 for unlimited")
	miningPct := flag.Int("mining-pct", 20, "percent of readings with the mining signature")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	sent := 0
	for round := 0; *rounds == 0 || round < *rounds; round++ {
		for i := 0; i < *sensors; i++ {
			sensorID := fmt.Sprintf("SENSOR_%03d", i+1)
			p := pick(*miningPct)
			jitter := 1 + (rand.Float64()-0.5)*0.1

			reading := domain.SensorReading{
				Timestamp:      time.Now().UTC(),
				Activity:       p.activity,
				Battery:        50 + rand.Float64()*50,
				SignalStrength: domain.SignalStrong,
				IsActive:       true,
				IsTriggered:    p.triggered,
				MaxAmplitude:   p.maxAmplitude * jitter,
				RMSRatio:       p.rmsRatio * jitter,
				PowerRatio:     p.powerRatio * jitter,
			}

			body, _ := json.Marshal(reading)
			url := fmt.Sprintf("%s/ecowatch/sensors/%s", *baseURL, sensorID)
			resp, err := client.Post(url, "application/json", bytes.NewReader(body))
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", sensorID, err)
				continue
			}
			resp.Body.Close()
			sent++
			fmt.Printf("%s %s -> %s\n", sensorID, p.name, resp.Status)
		}
		time.Sleep(*interval)
	}
	fmt.Printf("sent %d readings\n", sent)
}

func pick(miningPct int) profile {
	n := rand.Intn(100)
	switch {
	case n < miningPct:
		return profiles[0]
	case n < miningPct+10:
		return profiles[1]
	default:
		return profiles[2]
	}
}
