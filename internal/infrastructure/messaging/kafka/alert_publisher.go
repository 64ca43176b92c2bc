package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"fraud-scoring-service/internal/domain/fraud"
)

// messageWriter is the subset of kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config holds alert publisher settings
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// AlertEvent is the message published for every fraud alert
type AlertEvent struct {
	AlertID          uuid.UUID        `json:"alert_id"`
	TransactionID    uuid.UUID        `json:"transaction_id"`
	PredictionID     uuid.UUID        `json:"prediction_id"`
	AlertLevel       fraud.AlertLevel `json:"alert_level"`
	AlertMessage     string           `json:"alert_message"`
	RiskLevel        fraud.RiskLevel  `json:"risk_level"`
	FraudProbability float64          `json:"fraud_probability"`
	ModelVersion     string           `json:"model_version"`
	CreatedAt        time.Time        `json:"created_at"`
}

// AlertPublisher writes alert events to a Kafka topic, keyed by transaction
// so events for one transaction land on one partition.
type AlertPublisher struct {
	writer messageWriter
}

// NewAlertPublisher creates a publisher backed by a kafka-go writer
func NewAlertPublisher(cfg Config) *AlertPublisher {
	return &AlertPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// PublishAlert sends one alert event
func (p *AlertPublisher) PublishAlert(ctx context.Context, alert *fraud.FraudAlert, result *fraud.PredictionResult) error {
	event := AlertEvent{
		AlertID:          alert.ID,
		TransactionID:    alert.TransactionID,
		PredictionID:     alert.PredictionID,
		AlertLevel:       alert.Level,
		AlertMessage:     alert.Message,
		RiskLevel:        result.RiskLevel,
		FraudProbability: result.FraudProbability,
		ModelVersion:     result.ModelVersion,
		CreatedAt:        alert.CreatedAt,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode alert event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(alert.TransactionID.String()),
		Value: value,
		Time:  alert.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", alert.ID, err)
	}
	return nil
}

// Close flushes pending writes
func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}
