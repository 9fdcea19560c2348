// Package notify delivers workflow notifications to users and roles. Every backend is
// fire-and-forget from the caller's point of view: services flush their outbox after commit
// and only log delivery failures.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/segmentio/kafka-go"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// TaskDeliver is the asynq task type the worker persists notifications from.
const TaskDeliver = "notification:deliver"

// Backend names accepted by New.
const (
	BackendLog   = "log"
	BackendAsynq = "asynq"
	BackendKafka = "kafka"
)

// Options selects and configures a backend.
type Options struct {
	Backend      string
	Queue        string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	Logger       *slog.Logger
}

// Notifier is a shared.Notifier that holds resources.
type Notifier interface {
	shared.Notifier
	Close() error
}

// New builds the configured backend. An empty backend picks kafka when brokers are set and
// asynq otherwise.
func New(opts Options) (Notifier, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendAsynq
		if len(opts.KafkaBrokers) > 0 {
			backend = BackendKafka
		}
	}
	switch backend {
	case BackendLog:
		return NewLogNotifier(opts.Logger), nil
	case BackendAsynq:
		if opts.RedisAddr == "" {
			return nil, errors.New("notify: redis address required for asynq backend")
		}
		return NewAsynqNotifier(asynq.NewClient(asynq.RedisClientOpt{Addr: opts.RedisAddr}), opts.Queue), nil
	case BackendKafka:
		if len(opts.KafkaBrokers) == 0 || opts.KafkaTopic == "" {
			return nil, errors.New("notify: kafka brokers and topic required")
		}
		return NewKafkaNotifier(opts.KafkaBrokers, opts.KafkaTopic), nil
	}
	return nil, fmt.Errorf("notify: unknown backend %q", opts.Backend)
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg shared.Notification) error {
	n.logger.Info("notification",
		slog.Int64("user_id", msg.UserID),
		slog.String("role", msg.Role),
		slog.String("severity", string(msg.Severity)),
		slog.String("message", msg.Message),
		slog.String("link", msg.Link))
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// AsynqNotifier enqueues a TaskDeliver task per notification.
type AsynqNotifier struct {
	client *asynq.Client
	queue  string
}

func NewAsynqNotifier(client *asynq.Client, queue string) *AsynqNotifier {
	if queue == "" {
		queue = "default"
	}
	return &AsynqNotifier{client: client, queue: queue}
}

func (n *AsynqNotifier) Notify(ctx context.Context, msg shared.Notification) error {
	task, err := NewDeliverTask(msg)
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(n.queue), asynq.MaxRetry(5))
	return err
}

func (n *AsynqNotifier) Close() error {
	return n.client.Close()
}

// NewDeliverTask encodes a notification as an asynq task.
func NewDeliverTask(msg shared.Notification) (*asynq.Task, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliver, body), nil
}

// ParseDeliverTask decodes the payload of a TaskDeliver task.
func ParseDeliverTask(t *asynq.Task) (shared.Notification, error) {
	var msg shared.Notification
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return shared.Notification{}, err
	}
	return msg, validate(msg)
}

// KafkaNotifier publishes notifications as JSON to a topic, keyed by recipient.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg shared.Notification) error {
	m, err := Message(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.writer.WriteMessages(ctx, m)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// Message builds the kafka record for a notification.
func Message(msg shared.Notification) (kafka.Message, error) {
	if err := validate(msg); err != nil {
		return kafka.Message{}, err
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(recipient(msg)), Value: value}, nil
}

func recipient(msg shared.Notification) string {
	if msg.UserID > 0 {
		return fmt.Sprintf("user:%d", msg.UserID)
	}
	return "role:" + msg.Role
}

func validate(msg shared.Notification) error {
	if msg.UserID <= 0 && msg.Role == "" {
		return shared.NewValidationError("recipient", "user_id or role is required")
	}
	if strings.TrimSpace(msg.Message) == "" {
		return shared.NewValidationError("message", "is required")
	}
	return nil
}

// Store persists delivered notifications for the in-app inbox.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// Save inserts one notification row.
func (s *Store) Save(ctx context.Context, msg shared.Notification, at time.Time) error {
	var (
		userID any
		role   any
	)
	if msg.UserID > 0 {
		userID = msg.UserID
	}
	if msg.Role != "" {
		role = msg.Role
	}
	_, err := s.db.Exec(ctx, `INSERT INTO notifications (user_id, role, message, severity, link, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`, userID, role, msg.Message, string(msg.Severity), msg.Link, at)
	return err
}
