package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/eternisai/group-notifier/internal/logger"
)

// MaxMulticastTokens is the FCM limit on tokens per SendEachForMulticast call.
const MaxMulticastTokens = 500

// MulticastSender is the subset of *messaging.Client used by the gateway.
type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Gateway sends notifications to batches of device tokens via Firebase Cloud Messaging.
type Gateway struct {
	client    MulticastSender
	logger    *logger.Logger
	enabled   bool
	chunkSize int
}

// NewGateway creates a new FCM delivery gateway.
func NewGateway(client MulticastSender, logger *logger.Logger, enabled bool) *Gateway {
	return &Gateway{
		client:    client,
		logger:    logger.WithComponent("gateway"),
		enabled:   enabled,
		chunkSize: MaxMulticastTokens,
	}
}

// SendMulticast delivers n to every token. The returned outcomes line up with tokens
// index for index. When a chunk cannot be attempted the error is returned together
// with the outcomes of the chunks already sent, which then cover a prefix of tokens.
func (g *Gateway) SendMulticast(ctx context.Context, n Notification, tokens []string) ([]DeliveryOutcome, error) {
	log := g.logger.WithContext(ctx)

	if len(tokens) == 0 {
		return nil, nil
	}

	if !g.enabled {
		log.Debug("push notifications disabled, skipping",
			slog.String("notification_type", string(n.Type)),
			slog.Int("device_count", len(tokens)))
		outcomes := make([]DeliveryOutcome, len(tokens))
		for i, token := range tokens {
			outcomes[i] = DeliveryOutcome{Token: token, Success: true}
		}
		return outcomes, nil
	}

	data, err := n.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	outcomes := make([]DeliveryOutcome, 0, len(tokens))
	for start := 0; start < len(tokens); start += g.chunkSize {
		end := min(start+g.chunkSize, len(tokens))
		chunk := tokens[start:end]

		log.Debug("📤 sending multicast",
			slog.String("notification_type", string(n.Type)),
			slog.Int("device_count", len(chunk)))

		resp, err := g.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Data:   data,
			Tokens: chunk,
		})
		if err != nil {
			return outcomes, fmt.Errorf("multicast send failed after %d of %d tokens: %w", start, len(tokens), err)
		}

		outcomes = append(outcomes, outcomesFor(chunk, resp)...)
	}

	return outcomes, nil
}

func outcomesFor(chunk []string, resp *messaging.BatchResponse) []DeliveryOutcome {
	outcomes := make([]DeliveryOutcome, len(chunk))
	for i, token := range chunk {
		if resp == nil || i >= len(resp.Responses) || resp.Responses[i] == nil {
			outcomes[i] = DeliveryOutcome{
				Token:  token,
				Reason: ReasonOther,
				Err:    errors.New("no response for token"),
			}
			continue
		}

		r := resp.Responses[i]
		if r.Success {
			outcomes[i] = DeliveryOutcome{Token: token, Success: true, MessageID: r.MessageID}
			continue
		}

		outcomes[i] = DeliveryOutcome{
			Token:  token,
			Reason: classify(r.Error),
			Err:    r.Error,
		}
	}
	return outcomes
}

func classify(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonOther
	case messaging.IsUnregistered(err):
		return ReasonUnregistered
	case messaging.IsInvalidArgument(err):
		return ReasonInvalidArgument
	case messaging.IsUnavailable(err):
		return ReasonUnavailable
	case messaging.IsQuotaExceeded(err):
		return ReasonQuotaExceeded
	default:
		return ReasonOther
	}
}
