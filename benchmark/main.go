// Package main provides a benchmark tool for BabelPool to measure translation throughput.
// It publishes a large number of synthetic requests onto the request stream and
// counts result envelopes coming back on the result stream.
//
// A server must be running against the same Redis for results to appear.
//
// Usage:
//
//	go run benchmark/main.go -requests 5000 -languages en,de
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"babelpool/pkg/transport"
)

func main() {
	numRequests := flag.Int("requests", 1000, "Number of requests to publish")
	numWorkers := flag.Int("workers", 10, "Number of concurrent publishers")
	numWords := flag.Int("words", 20, "Words per synthetic text")
	languages := flag.String("languages", "en,de", "Comma-separated target languages")
	redisURL := flag.String("redis", "redis://localhost:6379/0", "Redis URL")
	flag.Parse()

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		fmt.Printf("Invalid Redis URL: %v\n", err)
		return
	}
	rdb := redis.NewClient(opts)
	ctx := context.Background()

	targets := strings.Split(*languages, ",")
	expected := int64(*numRequests) * int64(len(targets))
	text := strings.TrimSpace(strings.Repeat("toute traduction attend son heure ", (*numWords+4)/5))

	fmt.Printf("BabelPool Benchmark\n")
	fmt.Printf("===================\n")
	fmt.Printf("Requests to publish: %d\n", *numRequests)
	fmt.Printf("Target languages: %v\n", targets)
	fmt.Printf("Expected results: %d\n", expected)
	fmt.Printf("Concurrent publishers: %d\n\n", *numWorkers)

	// Start counting results before publishing so nothing slips past.
	var completed, failed atomic.Int64
	go func() {
		lastID := "$"
		for {
			streams, err := rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{transport.ResultStream, lastID},
				Count:   500,
				Block:   2 * time.Second,
			}).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				fmt.Printf("Error reading results: %v\n", err)
				time.Sleep(time.Second)
				continue
			}
			for _, stream := range streams {
				for _, msg := range stream.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var envelope struct {
						Type string `json:"type"`
					}
					if json.Unmarshal([]byte(data), &envelope) != nil {
						continue
					}
					switch envelope.Type {
					case "translation_completed":
						completed.Add(1)
					case "translation_error", "translation_skipped":
						failed.Add(1)
					}
				}
			}
		}
	}()

	// Publish phase
	fmt.Printf("Starting publish phase...\n")
	startPublish := time.Now()

	var wg sync.WaitGroup
	var published atomic.Int64
	requestsPerWorker := *numRequests / *numWorkers

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < requestsPerWorker; j++ {
				req := transport.Request{
					Type:            "translation",
					MessageID:       uuid.New().String(),
					ConversationID:  fmt.Sprintf("bench-%d", workerID),
					Text:            text,
					SourceLanguage:  "fr",
					TargetLanguages: targets,
					ModelType:       "basic",
					Timestamp:       float64(time.Now().UnixMilli()) / 1000,
				}
				data, err := json.Marshal(req)
				if err != nil {
					fmt.Printf("Error marshaling: %v\n", err)
					return
				}
				err = rdb.XAdd(ctx, &redis.XAddArgs{
					Stream: transport.RequestStream,
					Values: map[string]interface{}{"data": string(data)},
				}).Err()
				if err != nil {
					fmt.Printf("Error publishing: %v\n", err)
					return
				}
				published.Add(1)
			}
		}(i)
	}

	wg.Wait()
	publishTime := time.Since(startPublish)

	fmt.Printf("✓ Published %d requests in %s\n", published.Load(), publishTime)
	fmt.Printf("  Throughput: %.2f requests/sec\n\n", float64(published.Load())/publishTime.Seconds())

	// Wait for results
	fmt.Printf("Waiting for all results...\n")
	startProcess := time.Now()

	for {
		done := completed.Load() + failed.Load()
		if done >= expected {
			break
		}

		// Print progress every 2 seconds
		time.Sleep(2 * time.Second)
		fmt.Printf("  Remaining: %d results\n", expected-completed.Load()-failed.Load())
	}

	processTime := time.Since(startProcess)

	fmt.Printf("\n✓ Received %d results in %s (%d failed)\n", completed.Load()+failed.Load(), processTime, failed.Load())
	fmt.Printf("  Throughput: %.2f translations/sec\n", float64(expected)/processTime.Seconds())

	totalTime := publishTime + processTime
	fmt.Printf("\nTotal time: %s\n", totalTime)
	fmt.Printf("Overall throughput: %.2f translations/sec\n", float64(expected)/totalTime.Seconds())
}
