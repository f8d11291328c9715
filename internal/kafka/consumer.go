// Package kafka consumes the inbound event streams: sensor readings from the
// device gateway and scene triggers from the UI.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"

	"automation-service/internal/dispatch"
	"automation-service/internal/logging"
)

// SceneTrigger asks every SCENERY task bound to the scene to fire.
type SceneTrigger struct {
	SystemID string `json:"systemID"`
	SceneID  string `json:"sceneID"`
}

type Consumer struct {
	readings *kafka.Reader
	scenes   *kafka.Reader
	coord    *dispatch.Coordinator
	logger   *logging.Logger
}

func NewConsumer(broker, groupID, readingsTopic, scenesTopic string, coord *dispatch.Coordinator, logger *logging.Logger) *Consumer {
	newReader := func(topic string) *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  []string{broker},
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	return &Consumer{
		readings: newReader(readingsTopic),
		scenes:   newReader(scenesTopic),
		coord:    coord,
		logger:   logger,
	}
}

// Start launches one consume loop per topic. Loops exit when the context is
// cancelled or the reader is closed.
func (c *Consumer) Start(ctx context.Context) {
	go c.consume(ctx, c.readings, c.handleReading)
	go c.consume(ctx, c.scenes, c.handleScene)
}

func (c *Consumer) Close() error {
	rErr := c.readings.Close()
	sErr := c.scenes.Close()
	if rErr != nil {
		return rErr
	}
	return sErr
}

func (c *Consumer) consume(ctx context.Context, reader *kafka.Reader, handle func(context.Context, []byte)) {
	c.logger.Infof("Consuming topic %s", reader.Config().Topic)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Errorf("Read from topic %s failed: %v", reader.Config().Topic, err)
			continue
		}
		handle(ctx, msg.Value)
	}
}

func (c *Consumer) handleReading(ctx context.Context, payload []byte) {
	var reading dispatch.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		c.logger.Warnf("Dropping malformed sensor reading: %v", err)
		return
	}
	if reading.SystemID == "" {
		c.logger.Warnf("Dropping sensor reading without systemID")
		return
	}
	c.coord.HandleSensorReading(ctx, reading)
}

func (c *Consumer) handleScene(ctx context.Context, payload []byte) {
	var trigger SceneTrigger
	if err := json.Unmarshal(payload, &trigger); err != nil {
		c.logger.Warnf("Dropping malformed scene trigger: %v", err)
		return
	}
	if trigger.SystemID == "" || trigger.SceneID == "" {
		c.logger.Warnf("Dropping incomplete scene trigger")
		return
	}
	fired := c.coord.TriggerScene(ctx, trigger.SystemID, trigger.SceneID)
	c.logger.Infof("Scene %s in system %s fired %d tasks", trigger.SceneID, trigger.SystemID, fired)
}
