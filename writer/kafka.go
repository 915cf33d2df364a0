package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "signalflow/config"
	"signalflow/logger"
	"signalflow/models"
)

// KafkaPublisher pushes each run payload to a Kafka topic so downstream
// consumers (alerting, dashboards) see scan results without polling the
// artifact directory.
type KafkaPublisher struct {
	config *appconfig.Config
	writer *kafka.Writer
	log    *logger.Log
}

func NewKafkaPublisher(cfg *appconfig.Config) (*KafkaPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kp := &KafkaPublisher{
		config: cfg,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}
	kp.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Debug("kafka publisher initialized")
	return kp, nil
}

// Publish sends the payload as a single message keyed by run id.
func (kp *KafkaPublisher) Publish(ctx context.Context, payload *models.RunPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal run payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(payload.RunMetadata.RunID),
		Value: data,
	}
	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish run payload: %w", err)
	}

	kp.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"run_id":  payload.RunMetadata.RunID,
		"signals": len(payload.Signals),
		"bytes":   len(data),
	}).Debug("run payload published")
	logger.RecordStageItem("kafka_publish", len(data))
	return nil
}

// Close flushes and closes the underlying writer.
func (kp *KafkaPublisher) Close() error {
	return kp.writer.Close()
}
