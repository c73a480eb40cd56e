// Package events publishes section-arrival events for plan generations and
// streams them to clients as Server-Sent Events.
//
// Events are published to subjects of the form:
//
//	plans.{account|anonymous}.{generation_id}.started
//	plans.{account|anonymous}.{generation_id}.section
//	plans.{account|anonymous}.{generation_id}.completed
//	plans.{account|anonymous}.{generation_id}.website_prompt
//	plans.{account|anonymous}.{generation_id}.failed
//
// The website prompt settles after the rest of the plan, so website_prompt
// and failed are the terminal events of a generation.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// Kind is the last token of an event subject.
type Kind string

const (
	KindStarted       Kind = "started"
	KindSection       Kind = "section"
	KindCompleted     Kind = "completed"
	KindWebsitePrompt Kind = "website_prompt"
	KindFailed        Kind = "failed"
)

// Terminal reports whether no further events follow k.
func (k Kind) Terminal() bool {
	return k == KindWebsitePrompt || k == KindFailed
}

const anonymousToken = "anonymous"

// Event is the JSON payload of every published message.
type Event struct {
	GenerationID string            `json:"generation_id"`
	AccountID    string            `json:"account_id,omitempty"`
	Idea         string            `json:"idea,omitempty"`
	Section      plan.SectionKind  `json:"section,omitempty"`
	State        plan.SectionState `json:"state,omitempty"`
	Error        string            `json:"error,omitempty"`
	Payload      any               `json:"payload,omitempty"`
	Time         time.Time         `json:"time"`
}

// Publisher sends generation events.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, ev *Event) error
}

// Subject returns the subject for one event of a generation.
func Subject(accountID, generationID string, kind Kind) string {
	return fmt.Sprintf("plans.%s.%s.%s", subjectToken(accountID), subjectToken(generationID), kind)
}

// GenerationSubject returns the wildcard subject matching every event of a
// generation.
func GenerationSubject(accountID, generationID string) string {
	return fmt.Sprintf("plans.%s.%s.*", subjectToken(accountID), subjectToken(generationID))
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return anonymousToken
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// kindOf extracts the event kind from a subject.
func kindOf(subject string) (Kind, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[0] != "plans" {
		return "", false
	}
	return Kind(parts[3]), true
}

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// NewNATSPublisher creates a publisher on nc.
func NewNATSPublisher(nc *nats.Conn, logger *logging.Logger) (*NATSPublisher, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &NATSPublisher{nc: nc, logger: logger.Named("events")}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, kind Kind, ev *Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}

	subject := Subject(ev.AccountID, ev.GenerationID, kind)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}
	p.logger.Trace(ctx, "event published", zap.String("subject", subject))
	return nil
}

// NopPublisher drops every event. It is used when NATS is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Kind, *Event) error { return nil }
