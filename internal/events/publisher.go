package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eternisai/group-notifier/internal/dispatch"
	"github.com/eternisai/group-notifier/internal/logger"
)

// DefaultSubject is where dispatch summaries are published.
const DefaultSubject = "notifications.dispatched"

// Summary is the JSON document published for every processed change event.
type Summary struct {
	EventID         string    `json:"event_id"`
	InstanceID      string    `json:"instance_id"`
	GroupID         string    `json:"group_id"`
	Kind            string    `json:"kind"`
	Outcome         string    `json:"outcome"`
	Skipped         bool      `json:"skipped"`
	SkipReason      string    `json:"skip_reason,omitempty"`
	Recipients      int       `json:"recipients"`
	Delivered       int       `json:"delivered"`
	Failed          int       `json:"failed"`
	Pruned          int       `json:"pruned"`
	BranchErrors    int       `json:"branch_errors"`
	EmailRecipients int       `json:"email_recipients"`
	Watermarked     bool      `json:"watermarked"`
	DurationMs      int64     `json:"duration_ms"`
	PublishedAt     time.Time `json:"published_at"`
}

// NewSummary flattens a dispatch result. Token values are never included.
func NewSummary(r dispatch.Result, publishedAt time.Time) Summary {
	return Summary{
		EventID:         r.EventID,
		InstanceID:      logger.GetInstanceID(),
		GroupID:         r.GroupID,
		Kind:            string(r.Kind),
		Outcome:         r.Outcome(),
		Skipped:         r.Skipped,
		SkipReason:      string(r.SkipReason),
		Recipients:      len(r.Recipients),
		Delivered:       r.Delivered(),
		Failed:          r.Failed(),
		Pruned:          len(r.Pruned()),
		BranchErrors:    r.BranchErrors(),
		EmailRecipients: r.EmailRecipients,
		Watermarked:     r.Watermarked,
		DurationMs:      r.Duration.Milliseconds(),
		PublishedAt:     publishedAt.UTC(),
	}
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends dispatch summaries to NATS.
type Publisher struct {
	conn    Conn
	subject string
	logger  *logger.Logger
	now     func() time.Time
}

// NewPublisher creates a publisher on subject, falling back to DefaultSubject.
func NewPublisher(conn Conn, subject string, log *logger.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  log.WithComponent("events"),
		now:     time.Now,
	}
}

// Publish is fire-and-forget: a NATS failure is returned for logging but
// never affects delivery.
func (p *Publisher) Publish(ctx context.Context, r dispatch.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewSummary(r, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch summary: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish dispatch summary: %w", err)
	}

	p.logger.WithContext(ctx).Debug("published dispatch summary",
		slog.String("subject", p.subject),
		slog.String("event_id", r.EventID))
	return nil
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, base *logger.Logger) (*nats.Conn, error) {
	log := base.WithComponent("events")
	nc, err := nats.Connect(url,
		nats.Name("group-notifier-"+logger.GetInstanceID()),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}
