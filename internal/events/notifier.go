package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/logfields"
	"github.com/hallvik/pagepress/internal/pipeline"
)

const publishTimeout = 5 * time.Second

// RunEvent is the payload published for run lifecycle events.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Branch     string    `json:"branch"`
	Commit     string    `json:"commit,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Documents  int       `json:"documents,omitempty"`
	Pages      int       `json:"pages,omitempty"`
	Published  bool      `json:"published"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NATSNotifier publishes run lifecycle events to a NATS subject. Event
// delivery is strictly best effort: a broken message bus must never fail or
// delay a pipeline run, so publish errors are logged and dropped.
type NATSNotifier struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSNotifier connects to the configured NATS server.
func NewNATSNotifier(cfg config.EventsConfig) (*NATSNotifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("events are disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	slog.Info("Run event publishing enabled",
		logfields.URL(cfg.URL),
		slog.String("subject", cfg.Subject))

	return &NATSNotifier{conn: conn, js: js, subject: cfg.Subject}, nil
}

// RunStarted publishes a <subject>.started event.
func (n *NATSNotifier) RunStarted(ctx context.Context, report *pipeline.RunReport) {
	n.publish(ctx, n.subject+".started", RunEvent{
		RunID:     report.RunID,
		Branch:    report.Branch,
		Commit:    report.Commit,
		Timestamp: time.Now(),
	})
}

// RunFinished publishes a <subject>.finished event with the run outcome.
func (n *NATSNotifier) RunFinished(ctx context.Context, report *pipeline.RunReport) {
	event := RunEvent{
		RunID:      report.RunID,
		Branch:     report.Branch,
		Commit:     report.Commit,
		Outcome:    string(report.Outcome),
		Documents:  report.Documents,
		Pages:      report.Pages,
		Published:  report.Published,
		DurationMS: report.Duration().Milliseconds(),
		Timestamp:  time.Now(),
	}
	if err := report.FirstError(); err != nil {
		event.Error = err.Error()
	}
	n.publish(ctx, n.subject+".finished", event)
}

func (n *NATSNotifier) publish(ctx context.Context, subject string, event RunEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal run event", logfields.Error(err))
		return
	}

	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		slog.Warn("Failed to publish run event",
			slog.String("subject", subject),
			logfields.RunID(event.RunID),
			logfields.Error(err))
		return
	}

	slog.Debug("Published run event",
		slog.String("subject", subject),
		logfields.RunID(event.RunID))
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
