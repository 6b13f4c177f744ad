package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/mangaverse/backend/internal/models"
)

// DefaultExportExchange is the topic exchange ledger events are published to.
const DefaultExportExchange = "ledger.events"

// AMQPChannel is the subset of *amqp091.Channel the exporter needs.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPExporter publishes every entry to a topic exchange with routing key
// ledger.<kind>, so consumers can bind to the entry kinds they care about.
type AMQPExporter struct {
	channel  AMQPChannel
	exchange string
	declared bool
}

func NewAMQPExporter(channel AMQPChannel, exchange string) *AMQPExporter {
	if exchange == "" {
		exchange = DefaultExportExchange
	}
	return &AMQPExporter{channel: channel, exchange: exchange}
}

func (e *AMQPExporter) Name() string { return "amqp" }

// Export is called with the shipper's lock held, so declared needs no guard.
func (e *AMQPExporter) Export(ctx context.Context, entries []models.LedgerEntry) error {
	if !e.declared {
		if err := e.channel.ExchangeDeclare(e.exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", e.exchange, err)
		}
		e.declared = true
	}

	for _, entry := range entries {
		body, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		err = e.channel.PublishWithContext(ctx, e.exchange, RoutingKey(entry.Kind), false, false, amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     entry.ID,
			CorrelationId: entry.OperationID,
			Timestamp:     entry.Timestamp,
			Body:          body,
		})
		if err != nil {
			return fmt.Errorf("publish entry %d: %w", entry.Sequence, err)
		}
	}
	return nil
}

// RoutingKey is the topic an entry of the given kind is published under.
func RoutingKey(kind models.EntryKind) string {
	return "ledger." + string(kind)
}
