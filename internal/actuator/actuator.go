// Package actuator is the outbound seam to the device-control collaborator.
// The production implementation publishes actuation commands to Kafka; tests
// plug in a Func.
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"automation-service/internal/models"
)

// Actuator performs one physical actuation and reports per-target success.
type Actuator interface {
	Actuate(ctx context.Context, req models.ActuationRequest) error
}

// Func adapts a plain function to the Actuator interface.
type Func func(ctx context.Context, req models.ActuationRequest) error

func (f Func) Actuate(ctx context.Context, req models.ActuationRequest) error {
	return f(ctx, req)
}

// KafkaPublisher writes actuation commands keyed by station so the device
// gateway consumes each target's commands in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Actuate(ctx context.Context, req models.ActuationRequest) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal actuation for station %s: %w", req.StationID, err)
	}
	msg := kafka.Message{
		Key:   []byte(req.SystemID + "/" + req.StationID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish actuation for station %s: %w", req.StationID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
