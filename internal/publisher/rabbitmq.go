package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bizsync/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// NewRabbitMQ connects and declares a durable topic exchange with one
// bound queue for sync reports.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "publisher"),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// SyncCompletedMessage is published once per finished sync pass.
type SyncCompletedMessage struct {
	OwnerID    string            `json:"owner_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Pushed     int               `json:"pushed"`
	Pulled     int               `json:"pulled"`
	Failed     int               `json:"failed"`
	Categories []CategoryOutcome `json:"categories"`
	Timestamp  time.Time         `json:"timestamp"`
}

type CategoryOutcome struct {
	Category                  string `json:"category"`
	Pushed                    int    `json:"pushed"`
	Rejected                  int    `json:"rejected"`
	Pulled                    int    `json:"pulled"`
	ConflictsResolvedByRemote int    `json:"conflicts_resolved_by_remote"`
	ConflictsResolvedByLocal  int    `json:"conflicts_resolved_by_local"`
	Checkpoint                int64  `json:"checkpoint"`
	Error                     string `json:"error,omitempty"`
}

func NewSyncCompletedMessage(report *domain.SyncReport) SyncCompletedMessage {
	totals := report.Totals()
	msg := SyncCompletedMessage{
		OwnerID:    report.OwnerID,
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
		Pushed:     totals.Pushed,
		Pulled:     totals.Pulled,
		Failed:     len(report.Failed()),
		Categories: make([]CategoryOutcome, 0, len(report.Results)),
		Timestamp:  time.Now().UTC(),
	}

	for _, res := range report.Results {
		outcome := CategoryOutcome{
			Category:                  string(res.Category),
			Pushed:                    res.Pushed,
			Rejected:                  res.Rejected,
			Pulled:                    res.Pulled,
			ConflictsResolvedByRemote: res.ConflictsResolvedByRemote,
			ConflictsResolvedByLocal:  res.ConflictsResolvedByLocal,
			Checkpoint:                res.Checkpoint,
		}
		if res.Failure != nil {
			outcome.Error = res.Failure.Error()
		}
		msg.Categories = append(msg.Categories, outcome)
	}
	return msg
}

func (r *RabbitMQ) PublishReport(ctx context.Context, report *domain.SyncReport) error {
	msg := NewSyncCompletedMessage(report)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published sync report",
		"owner_id", report.OwnerID,
		"categories", len(msg.Categories),
		"failed", msg.Failed,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
