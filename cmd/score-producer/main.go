package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// ScoreEvent mirrors the score-event message consumed by the server
type ScoreEvent struct {
	PlayerID    int64     `json:"player_id"`
	ActivityKey string    `json:"activity_key"`
	Points      int       `json:"points"`
	SessionID   int64     `json:"session_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "progression-score-events", "Kafka topic")
	activities := flag.String("activities", "color_smash", "Activity keys (comma-separated)")
	totalPlayers := flag.Int("players", 100, "Number of simulated players")
	eventsPerSecond := flag.Int("rate", 50, "Score events per second")
	maxPoints := flag.Int("max-points", 10, "Maximum points per event")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")
	activityList := strings.Split(*activities, ",")

	fmt.Println("Score event producer")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Activities:  %s\n", *activities)
	fmt.Printf("  Players:     %d\n", *totalPlayers)
	fmt.Printf("  Events/sec:  %d\n", *eventsPerSecond)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper; messages are keyed by player so events for one
	// player stay ordered within a partition
	sendEvent := func(event ScoreEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(event.PlayerID, 10)),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Printf("Emitting score events (%d/sec), press Ctrl+C to stop\n\n", *eventsPerSecond)

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventNum int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			// Player IDs start at 1; id 0 is the guest and its progress is
			// never persisted, so simulating it would be a no-op
			event := ScoreEvent{
				PlayerID:    int64(rand.Intn(*totalPlayers) + 1),
				ActivityKey: activityList[rand.Intn(len(activityList))],
				Points:      rand.Intn(*maxPoints) + 1,
				Timestamp:   time.Now(),
			}
			sendEvent(event)
			atomic.AddInt64(&eventNum, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&eventNum),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
