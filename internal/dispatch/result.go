package dispatch

import (
	"time"

	"github.com/eternisai/group-notifier/internal/groups"
)

// SkipReason explains why an event produced no dispatch work.
type SkipReason string

const (
	SkipAlreadyNotified SkipReason = "already_notified"
	SkipDeleted         SkipReason = "deleted"
	SkipUnknownKind     SkipReason = "unknown_kind"
)

// RecipientResult is the outcome of one recipient's fan-out branch.
type RecipientResult struct {
	UID       string
	NoTokens  bool
	Attempted int
	Delivered int
	Failed    int
	Pruned    []string
	Err       error
}

// Result summarises the processing of one change event.
type Result struct {
	EventID         string
	GroupID         string
	Kind            groups.ChangeKind
	Skipped         bool
	SkipReason      SkipReason
	Recipients      []RecipientResult
	EmailRecipients int
	Watermarked     bool
	WatermarkErr    error
	Duration        time.Duration
}

// Delivered returns the number of tokens the gateway accepted.
func (r Result) Delivered() int {
	n := 0
	for _, rr := range r.Recipients {
		n += rr.Delivered
	}
	return n
}

// Failed returns the number of tokens the gateway rejected.
func (r Result) Failed() int {
	n := 0
	for _, rr := range r.Recipients {
		n += rr.Failed
	}
	return n
}

// Pruned returns every token deleted after an unregistered response.
func (r Result) Pruned() []string {
	var out []string
	for _, rr := range r.Recipients {
		out = append(out, rr.Pruned...)
	}
	return out
}

// BranchErrors returns the number of recipients whose branch could not complete.
func (r Result) BranchErrors() int {
	n := 0
	for _, rr := range r.Recipients {
		if rr.Err != nil {
			n++
		}
	}
	return n
}

// Outcome is a coarse label for metrics and logs.
func (r Result) Outcome() string {
	switch {
	case r.Skipped:
		return string(r.SkipReason)
	case r.BranchErrors() > 0 || r.Failed() > 0 || r.WatermarkErr != nil:
		return "partial"
	default:
		return "dispatched"
	}
}
