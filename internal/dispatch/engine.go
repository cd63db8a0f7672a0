package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eternisai/group-notifier/internal/groups"
	"github.com/eternisai/group-notifier/internal/logger"
	"github.com/eternisai/group-notifier/internal/metrics"
	"github.com/eternisai/group-notifier/internal/notifications"
)

const (
	MatchEmailSubject = "[FlatFinder] You have a new match!"
	MatchEmailBody    = "Open the app to see your new match."

	defaultFanoutConcurrency = 16
	watermarkTimeout         = 10 * time.Second
)

// TokenStore resolves and revokes delivery tokens.
type TokenStore interface {
	TokensFor(ctx context.Context, uid string) ([]notifications.DeliveryToken, error)
	DeleteToken(ctx context.Context, token string) error
}

// Gateway delivers one notification to many tokens.
type Gateway interface {
	SendMulticast(ctx context.Context, n notifications.Notification, tokens []string) ([]notifications.DeliveryOutcome, error)
}

// GroupStore advances the dispatch watermark of a group.
type GroupStore interface {
	MarkNotified(ctx context.Context, groupID string) error
}

// Directory resolves member display names and email addresses.
type Directory interface {
	DisplayName(ctx context.Context, uid string) (string, error)
	Email(ctx context.Context, uid string) (string, error)
}

// Mailer sends one email to many blind-copied recipients.
type Mailer interface {
	SendBlindCopy(ctx context.Context, to []string, subject, body string) error
}

// ResultPublisher announces finished dispatch cycles to other services.
type ResultPublisher interface {
	Publish(ctx context.Context, result Result) error
}

// Engine turns group change events into push notifications.
type Engine struct {
	tokens    TokenStore
	gateway   Gateway
	groups    GroupStore
	directory Directory
	logger    *logger.Logger

	mailer    Mailer
	publisher ResultPublisher
	metrics   *metrics.Metrics
	fanout    int
	now       func() time.Time
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithMailer enables the new match email.
func WithMailer(m Mailer) Option {
	return func(e *Engine) { e.mailer = m }
}

// WithPublisher publishes every non-skipped result.
func WithPublisher(p ResultPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics records results in Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFanoutConcurrency bounds the number of recipients served in parallel per event.
func WithFanoutConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanout = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a dispatch engine.
func NewEngine(
	tokens TokenStore,
	gateway Gateway,
	groupStore GroupStore,
	directory Directory,
	logger *logger.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		tokens:    tokens,
		gateway:   gateway,
		groups:    groupStore,
		directory: directory,
		logger:    logger.WithComponent("dispatch"),
		fanout:    defaultFanoutConcurrency,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process handles one change event. It never fails: per-recipient and per-token
// problems are logged and reported in the Result.
func (e *Engine) Process(ctx context.Context, ev groups.ChangeEvent) Result {
	start := e.now()
	group := ev.Group

	ctx = logger.WithEventID(ctx, ev.ID)
	ctx = logger.WithGroupID(ctx, group.ID)
	log := e.logger.WithContext(ctx)

	kind := ev.EffectiveKind()
	result := Result{
		EventID: ev.ID,
		GroupID: group.ID,
		Kind:    kind,
	}

	if !group.NeedsDispatch() {
		log.Debug("no new messages to notify")
		return e.skip(result, SkipAlreadyNotified)
	}

	var match *notifications.Notification
	switch kind {
	case groups.ChangeDeleted:
		log.Info("group removed, nothing to notify")
		return e.skip(result, SkipDeleted)
	case groups.ChangeCreated:
		n := notifications.NewMatch(group.ID)
		match = &n
	case groups.ChangeUpdated:
	default:
		log.Warn("unknown change kind", slog.String("kind", string(kind)))
		return e.skip(result, SkipUnknownKind)
	}

	recipients := Recipients(group)
	log.Info("dispatching group change",
		slog.String("kind", string(kind)),
		slog.Int("recipients", len(recipients)))

	names := newNameResolver(e.directory, group, log)
	build := func(ctx context.Context, uid string) notifications.Notification {
		if match != nil {
			return *match
		}
		return notifications.NewMessage(group.ID, uid, names.resolve(ctx, uid))
	}

	result.Recipients = e.fanOut(ctx, recipients, build)

	if kind == groups.ChangeCreated && e.mailer != nil {
		result.EmailRecipients = e.sendMatchEmail(ctx, recipients)
	}

	// The watermark is written even when the dispatch context is done.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), watermarkTimeout)
	defer cancel()
	if err := e.groups.MarkNotified(wctx, group.ID); err != nil {
		result.WatermarkErr = err
		log.Error("failed to advance notification watermark", slog.String("error", err.Error()))
	} else {
		result.Watermarked = true
	}

	result.Duration = e.now().Sub(start)

	log.Info("📊 dispatch summary",
		slog.String("outcome", result.Outcome()),
		slog.Int("recipients", len(result.Recipients)),
		slog.Int("delivered", result.Delivered()),
		slog.Int("failed", result.Failed()),
		slog.Int("pruned", len(result.Pruned())),
		slog.Int("branch_errors", result.BranchErrors()),
		slog.Duration("duration", result.Duration))

	e.record(result)
	e.publish(ctx, result)

	return result
}

// Recipients returns the members to notify: every member except the author of the
// latest message, when one is recorded.
func Recipients(group groups.Group) []string {
	members := group.UniqueMembers()
	sender, ok := group.Sender()
	if !ok {
		return members
	}

	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != sender {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) skip(result Result, reason SkipReason) Result {
	result.Skipped = true
	result.SkipReason = reason
	e.metrics.ObserveEvent(string(result.Kind), string(reason))
	return result
}

func (e *Engine) fanOut(
	ctx context.Context,
	recipients []string,
	build func(context.Context, string) notifications.Notification,
) []RecipientResult {
	results := make([]RecipientResult, len(recipients))

	// Branches never return errors so one failing recipient cannot cancel the others.
	var g errgroup.Group
	g.SetLimit(e.fanout)
	for i, uid := range recipients {
		g.Go(func() error {
			results[i] = e.deliver(logger.WithRecipient(ctx, uid), uid, build)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) deliver(
	ctx context.Context,
	uid string,
	build func(context.Context, string) notifications.Notification,
) (rr RecipientResult) {
	log := e.logger.WithContext(ctx)
	rr.UID = uid

	defer func() {
		if r := recover(); r != nil {
			rr.Err = fmt.Errorf("recipient branch panicked: %v", r)
			log.Error("recipient branch panicked", slog.Any("panic", r))
		}
	}()

	tokens, err := e.tokens.TokensFor(ctx, uid)
	if err != nil {
		rr.Err = fmt.Errorf("failed to resolve tokens: %w", err)
		log.Error("failed to retrieve push tokens", slog.String("error", err.Error()))
		return rr
	}

	list := tokenStrings(tokens)
	if len(list) == 0 {
		rr.NoTokens = true
		log.Info("no tokens for user")
		return rr
	}

	n := build(ctx, uid)
	outcomes, err := e.gateway.SendMulticast(ctx, n, list)
	if err != nil {
		// Outcomes of batches sent before the failure are still acted on below.
		rr.Err = fmt.Errorf("failed to send multicast: %w", err)
		log.Error("error sending message",
			slog.Int("device_count", len(list)),
			slog.Int("sent", len(outcomes)),
			slog.String("error", err.Error()))
	}

	rr.Attempted = len(outcomes)
	for _, o := range outcomes {
		if o.Success {
			rr.Delivered++
			e.metrics.ObserveDelivery("success")
			continue
		}

		rr.Failed++
		e.metrics.ObserveDelivery(string(o.Reason))
		log.Warn("failed to send to token",
			slog.String("token_prefix", tokenPrefix(o.Token)),
			slog.String("reason", string(o.Reason)),
			slog.Any("error", o.Err))

		if !o.Permanent() {
			continue
		}
		if err := e.tokens.DeleteToken(ctx, o.Token); err != nil {
			log.Error("failed to delete unregistered token",
				slog.String("token_prefix", tokenPrefix(o.Token)),
				slog.String("error", err.Error()))
			continue
		}
		rr.Pruned = append(rr.Pruned, o.Token)
		e.metrics.TokenPruned()
	}

	return rr
}

func (e *Engine) sendMatchEmail(ctx context.Context, recipients []string) int {
	log := e.logger.WithContext(ctx)

	addrs := make([]string, 0, len(recipients))
	for _, uid := range recipients {
		addr, err := e.directory.Email(ctx, uid)
		if err != nil {
			log.Warn("failed to resolve email address",
				slog.String("uid", uid),
				slog.String("error", err.Error()))
			continue
		}
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}

	if len(addrs) == 0 {
		return 0
	}

	if err := e.mailer.SendBlindCopy(ctx, addrs, MatchEmailSubject, MatchEmailBody); err != nil {
		log.Error("failed to send new match email", slog.String("error", err.Error()))
		return 0
	}
	return len(addrs)
}

func (e *Engine) record(result Result) {
	e.metrics.ObserveEvent(string(result.Kind), result.Outcome())
	e.metrics.ObserveDispatch(result.Duration)
}

func (e *Engine) publish(ctx context.Context, result Result) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, result); err != nil {
		e.logger.WithContext(ctx).Warn("failed to publish dispatch result", slog.String("error", err.Error()))
	}
}

// tokenStrings returns the distinct non-empty token strings in order.
func tokenStrings(tokens []notifications.DeliveryToken) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		if _, ok := seen[t.Token]; ok {
			continue
		}
		seen[t.Token] = struct{}{}
		out = append(out, t.Token)
	}
	return out
}

func tokenPrefix(token string) string {
	return token[:min(10, len(token))] + "..."
}

// nameResolver memoises profile lookups for the lifetime of one event.
type nameResolver struct {
	directory Directory
	group     groups.Group
	logger    *logger.Logger

	mu    sync.Mutex
	names map[string]string
}

func newNameResolver(directory Directory, group groups.Group, logger *logger.Logger) *nameResolver {
	return &nameResolver{
		directory: directory,
		group:     group,
		logger:    logger,
		names:     make(map[string]string),
	}
}

// resolve returns the name recipient should see: the group name, else the first
// other member's profile name, else "Unknown".
func (r *nameResolver) resolve(ctx context.Context, recipient string) string {
	if name, ok := r.group.DisplayName(); ok {
		return name
	}

	other := ""
	for _, m := range r.group.UniqueMembers() {
		if m != recipient {
			other = m
			break
		}
	}
	if other == "" {
		return notifications.UnknownGroupName
	}

	r.mu.Lock()
	name, cached := r.names[other]
	r.mu.Unlock()
	if cached {
		return name
	}

	name, err := r.directory.DisplayName(ctx, other)
	if err != nil {
		r.logger.Warn("failed to resolve display name",
			slog.String("uid", other),
			slog.String("error", err.Error()))
		name = ""
	}
	if name == "" {
		name = notifications.UnknownGroupName
	}

	r.mu.Lock()
	r.names[other] = name
	r.mu.Unlock()

	return name
}
