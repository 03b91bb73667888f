// The notifier tails the reservation events topic and prints each event.
// It stands in for a real delivery channel (mail, push) in local setups.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dkhalmer/rentflow/internal/notify"
)

const groupID = "reservation-notifier-group"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}

	log.Println("Starting reservation notifier...")

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(brokers, ","),
		GroupID:        groupID,
		Topic:          notify.Topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("Error closing Kafka reader: %v", err)
		}
	}()

	log.Printf("Notifier connected to topic '%s' on brokers %s", notify.Topic, brokers)

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutdown signal received, stopping notifier.")
			return
		default:
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error reading message: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}

			var event notify.Event
			if err := json.Unmarshal(m.Value, &event); err != nil {
				log.Printf("Skipping malformed event at offset %d: %v", m.Offset, err)
				continue
			}

			fmt.Printf("[%s] reservation %s for customer %s is now %s\n",
				event.OccurredAt.Format(time.RFC3339),
				event.ReservationID,
				event.CustomerID,
				event.State)
		}
	}
}
