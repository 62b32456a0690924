package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var metricTypes = []string{"db_query", "memory_usage", "auth_failure"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of signald")
	mode := flag.String("mode", "metrics", "Traffic to send: metrics, transitions or ratelimit")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	clients := flag.Int("clients", 5, "Distinct X-Client-ID values to spread load over")
	flag.Parse()

	build, ok := builders[*mode]
	if !ok {
		log.Fatalf("unknown mode %q", *mode)
	}
	target := strings.TrimRight(*baseURL, "/") + build.path

	log.Printf("Starting %s load test on %s", *mode, target)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Clients: %d", *concurrency, *duration, *rps, *clients)

	var wg sync.WaitGroup
	var acceptedCount, limitedCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 50)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBufferString(build.body(workerID)))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Client-ID", fmt.Sprintf("load-%d", workerID%*clients))

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}
				switch {
				case resp.StatusCode == http.StatusTooManyRequests:
					limitedCount.Add(1)
				case resp.StatusCode < 300:
					acceptedCount.Add(1)
				default:
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	total := acceptedCount.Load() + limitedCount.Load() + errorCount.Load()
	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", total)
	log.Printf("Accepted: %d", acceptedCount.Load())
	log.Printf("Rate limited (429): %d", limitedCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", float64(total)/duration.Seconds())
}

type builder struct {
	path string
	body func(workerID int) string
}

var builders = map[string]builder{
	"metrics": {
		path: "/api/v1/metrics",
		body: func(int) string {
			t := metricTypes[rand.IntN(len(metricTypes))]
			return fmt.Sprintf(`{"type":%q,"value":%.2f}`, t, rand.Float64()*1000)
		},
	},
	"transitions": {
		path: "/api/v1/transitions",
		body: func(workerID int) string {
			status := "stable"
			if rand.IntN(20) == 0 {
				status = "critical"
			}
			return fmt.Sprintf(`{"entity_id":"load-%d","old_value":"active","new_value":%q,"category":"patient"}`, workerID, status)
		},
	},
	"ratelimit": {
		path: "/api/v1/ratelimit/check",
		body: func(workerID int) string {
			return fmt.Sprintf(`{"key":"load-%d","scope":"load_test","limit":100,"window_seconds":60}`, workerID%3)
		},
	},
}
