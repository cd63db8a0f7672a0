package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eternisai/group-notifier/internal/notifications"
)

type fakeTokenStore struct {
	mu        sync.Mutex
	tokens    map[string][]string // uid -> tokens
	failFor   map[string]error
	deleteErr error
	lookups   []string
	deleted   []string
}

func newFakeTokenStore(tokens map[string][]string) *fakeTokenStore {
	return &fakeTokenStore{tokens: tokens, failFor: map[string]error{}}
}

func (f *fakeTokenStore) TokensFor(_ context.Context, uid string) ([]notifications.DeliveryToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups = append(f.lookups, uid)
	if err := f.failFor[uid]; err != nil {
		return nil, err
	}

	var out []notifications.DeliveryToken
	for _, tok := range f.tokens[uid] {
		out = append(out, notifications.DeliveryToken{UID: uid, Token: tok})
	}
	return out, nil
}

func (f *fakeTokenStore) DeleteToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, token)
	for uid, toks := range f.tokens {
		kept := toks[:0]
		for _, t := range toks {
			if t != token {
				kept = append(kept, t)
			}
		}
		f.tokens[uid] = kept
	}
	return nil
}

func (f *fakeTokenStore) has(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, toks := range f.tokens {
		for _, t := range toks {
			if t == token {
				return true
			}
		}
	}
	return false
}

type multicastCall struct {
	notification notifications.Notification
	tokens       []string
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []multicastCall
	failures map[string]notifications.FailureReason // token -> reason
	err      error
	sent     int // with err set, how many leading tokens were sent before the failure
}

func (f *fakeGateway) SendMulticast(_ context.Context, n notifications.Notification, tokens []string) ([]notifications.DeliveryOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, multicastCall{notification: n, tokens: append([]string(nil), tokens...)})
	sent := tokens
	if f.err != nil {
		sent = tokens[:min(f.sent, len(tokens))]
	}

	outcomes := make([]notifications.DeliveryOutcome, len(sent))
	for i, tok := range sent {
		if reason, ok := f.failures[tok]; ok {
			outcomes[i] = notifications.DeliveryOutcome{Token: tok, Reason: reason, Err: errors.New(string(reason))}
			continue
		}
		outcomes[i] = notifications.DeliveryOutcome{Token: tok, Success: true, MessageID: "msg-" + tok}
	}
	return outcomes, f.err
}

func (f *fakeGateway) callsFor(uid string) []multicastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []multicastCall
	for _, c := range f.calls {
		if c.notification.Data["uid"] == uid {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGateway) allTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.tokens...)
	}
	return out
}

type fakeGroupStore struct {
	mu        sync.Mutex
	now       func() time.Time
	notified  map[string]time.Time
	writes    int
	err       error
	ctxErrors []error
}

func newFakeGroupStore(now func() time.Time) *fakeGroupStore {
	return &fakeGroupStore{now: now, notified: map[string]time.Time{}}
}

func (f *fakeGroupStore) MarkNotified(ctx context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	f.ctxErrors = append(f.ctxErrors, ctx.Err())
	if f.err != nil {
		return f.err
	}
	f.notified[groupID] = f.now()
	return nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	names   map[string]string
	emails  map[string]string
	nameErr error
	lookups int
}

func (f *fakeDirectory) DisplayName(_ context.Context, uid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.names[uid], nil
}

func (f *fakeDirectory) Email(_ context.Context, uid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emails[uid], nil
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    [][]string
	subject string
	err     error
}

func (f *fakeMailer) SendBlindCopy(_ context.Context, to []string, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	f.subject = subject
	return f.err
}

type fakePublisher struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, r Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return f.err
}

// stepClock returns strictly increasing times starting at start.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}
