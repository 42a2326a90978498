// sink-receiver is a local webhook sink for exercising hookrelay delivery.
// It records every event it receives, keyed by the X-Hookrelay-Request-ID
// header, and can simulate transient failures to drive the retry path:
//
//	ADDR        listen address (default :9000)
//	FAIL_FIRST  respond 503 to the first N deliveries of each request id
//	FAIL_RATE   respond 503 to this fraction of deliveries (0.0-1.0)
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type delivery struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
	Body      string `json:"body"`
	Status    int    `json:"status"`
}

type stats struct {
	Count          int64      `json:"count"`
	Failed         int64      `json:"failed"`
	UniqueRequests int        `json:"unique_requests"`
	Duplicates     int64      `json:"duplicates"`
	LastDeliveries []delivery `json:"last_deliveries"`
	Since          string     `json:"since"`
}

var (
	mu             sync.Mutex
	count          int64
	failedCount    int64
	duplicates     int64
	seenRequests   = make(map[string]int)
	lastDeliveries []delivery
	since          time.Time
	maxStored      = 50

	failFirst int
	failRate  float64
)

func main() {
	since = time.Now().UTC()

	addr := ":9000"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	if v := os.Getenv("FAIL_FIRST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			failFirst = n
		}
	}
	if v := os.Getenv("FAIL_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			failRate = f
		}
	}

	http.HandleFunc("/hook", hookHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		failedCount = 0
		duplicates = 0
		seenRequests = make(map[string]int)
		lastDeliveries = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("sink-receiver listening on %s (fail_first=%d, fail_rate=%.2f)", addr, failFirst, failRate)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func hookHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	requestID := r.Header.Get("X-Hookrelay-Request-ID")

	status := http.StatusOK
	mu.Lock()
	seenRequests[requestID]++
	deliveriesForID := seenRequests[requestID]
	if deliveriesForID > 1 {
		duplicates++
	}
	if failFirst > 0 && deliveriesForID <= failFirst {
		status = http.StatusServiceUnavailable
	} else if failRate > 0 && rand.Float64() < failRate {
		status = http.StatusServiceUnavailable
	}

	count++
	if status != http.StatusOK {
		failedCount++
	}
	lastDeliveries = append(lastDeliveries, delivery{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
		Body:      string(body),
		Status:    status,
	})
	if len(lastDeliveries) > maxStored {
		lastDeliveries = lastDeliveries[len(lastDeliveries)-maxStored:]
	}
	current := count
	mu.Unlock()

	log.Printf("delivery #%d request=%s status=%d: %s", current, requestID, status, string(body))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		fmt.Fprintf(w, `{"received":%d}`, current)
	} else {
		fmt.Fprint(w, `{"error":"simulated outage"}`)
	}
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:          count,
		Failed:         failedCount,
		UniqueRequests: len(seenRequests),
		Duplicates:     duplicates,
		LastDeliveries: lastDeliveries,
		Since:          since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
