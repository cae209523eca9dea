// Package events is the notification channel of the matchmaking core.
// Every state change that a client or the video bootstrapper cares about is
// emitted once, after its transaction commits, as an Event addressed to the
// users it concerns.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oggyb/speeddate/internal/domain"
)

type Kind string

const (
	KindPaired           Kind = "paired"
	KindVoteWindowOpened Kind = "vote_window_opened"
	KindOutcomeResolved  Kind = "outcome_resolved"
	KindPairCancelled    Kind = "pair_cancelled"
	KindQueueLeft        Kind = "queue_left"
)

// Event is one state change. UserIDs are the recipients.
type Event struct {
	Kind          Kind
	PairID        string
	UserIDs       []string
	Outcome       domain.Outcome
	Reason        string
	VoteExpiresAt time.Time
	At            time.Time
}

// Publisher delivers events to whoever is listening.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, e Event) error {
	attrs := []any{"kind", e.Kind, "users", e.UserIDs}
	if e.PairID != "" {
		attrs = append(attrs, "pair_id", e.PairID)
	}
	if e.Outcome != "" {
		attrs = append(attrs, "outcome", e.Outcome)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	p.Log.InfoContext(ctx, "event", attrs...)
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
