package plan

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SectionState describes where a section is in its lifecycle.
type SectionState string

const (
	StateReady       SectionState = "ready"
	StateUnavailable SectionState = "unavailable"
	StatePending     SectionState = "pending"
)

// SectionStatus is the per-section view exposed to clients.
type SectionStatus struct {
	Kind  SectionKind  `json:"kind"`
	State SectionState `json:"state"`
	Error string       `json:"error,omitempty"`
}

// AggregatePlan is the in-memory result of one generation. Sections are
// recorded once; the website prompt settles asynchronously after the plan is
// handed to the caller, so all accessors are safe for concurrent use.
type AggregatePlan struct {
	ID        string
	Idea      string
	AccountID string
	CreatedAt time.Time

	mu       sync.RWMutex
	bundle   Bundle
	failures map[SectionKind]string
	settled  map[SectionKind]bool

	websiteOnce sync.Once
	websiteDone chan struct{}

	saved      *SavedPlanRecord
	persistErr error
}

// NewAggregatePlan starts a plan around a successfully generated overview.
func NewAggregatePlan(id, idea, accountID string, createdAt time.Time, overview *Overview) *AggregatePlan {
	return &AggregatePlan{
		ID:          id,
		Idea:        idea,
		AccountID:   accountID,
		CreatedAt:   createdAt,
		bundle:      Bundle{Plan: overview},
		failures:    make(map[SectionKind]string),
		settled:     map[SectionKind]bool{KindOverview: true},
		websiteDone: make(chan struct{}),
	}
}

// Overview returns the primary section. It is never nil.
func (p *AggregatePlan) Overview() *Overview {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bundle.Plan
}

// Record stores the outcome of a secondary section. A non-nil err marks the
// section unavailable. Recording the same kind twice keeps the first outcome.
func (p *AggregatePlan) Record(kind SectionKind, payload any, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settled[kind] {
		return
	}
	p.settled[kind] = true

	if err == nil {
		err = p.assign(kind, payload)
	}
	if err != nil {
		p.failures[kind] = err.Error()
	}
}

func (p *AggregatePlan) assign(kind SectionKind, payload any) error {
	switch v := payload.(type) {
	case *MarketMetrics:
		if kind == KindMarketMetrics && v != nil {
			p.bundle.MarketMetrics = v
			return nil
		}
	case []Competitor:
		if kind == KindCompetitors {
			if v == nil {
				v = []Competitor{}
			}
			p.bundle.Competitors = v
			return nil
		}
	case *RiskAssessment:
		if kind == KindRiskAssessment && v != nil {
			p.bundle.RiskAssessment = v
			return nil
		}
	case *Research:
		if kind == KindResearch && v != nil {
			p.bundle.ResearchData = v
			return nil
		}
	case *MarketingStrategy:
		if kind == KindMarketingStrategy && v != nil {
			p.bundle.MarketingStrategy = v
			return nil
		}
	}
	return fmt.Errorf("unexpected payload %T for section %s", payload, kind)
}

// SettleWebsitePrompt records the late website prompt and releases waiters.
// Only the first call has any effect.
func (p *AggregatePlan) SettleWebsitePrompt(prompt string, err error) {
	p.websiteOnce.Do(func() {
		p.mu.Lock()
		p.settled[KindWebsitePrompt] = true
		if err != nil {
			p.failures[KindWebsitePrompt] = err.Error()
		} else {
			p.bundle.WebsitePrompt = &prompt
		}
		p.mu.Unlock()
		close(p.websiteDone)
	})
}

// WebsitePromptPending reports whether the website prompt is still in flight.
func (p *AggregatePlan) WebsitePromptPending() bool {
	select {
	case <-p.websiteDone:
		return false
	default:
		return true
	}
}

// WaitWebsitePrompt blocks until the website prompt settles or ctx is done.
func (p *AggregatePlan) WaitWebsitePrompt(ctx context.Context) error {
	select {
	case <-p.websiteDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the sections recorded so far.
func (p *AggregatePlan) Snapshot() Bundle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bundle
}

// Failures returns the error message of every unavailable section.
func (p *AggregatePlan) Failures() map[SectionKind]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[SectionKind]string, len(p.failures))
	for k, v := range p.failures {
		out[k] = v
	}
	return out
}

// Statuses reports the state of every section kind in display order.
func (p *AggregatePlan) Statuses() []SectionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]SectionStatus, 0, len(SecondaryKinds)+2)
	for _, kind := range AllKinds() {
		st := SectionStatus{Kind: kind}
		switch {
		case !p.settled[kind]:
			st.State = StatePending
		case p.failures[kind] != "":
			st.State = StateUnavailable
			st.Error = p.failures[kind]
		default:
			st.State = StateReady
		}
		out = append(out, st)
	}
	return out
}

// MarkPersisted records the outcome of the save triggered by this plan.
func (p *AggregatePlan) MarkPersisted(rec *SavedPlanRecord, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = rec
	p.persistErr = err
}

// Persisted returns the saved record, if the plan was written, and the
// error of the last save attempt.
func (p *AggregatePlan) Persisted() (*SavedPlanRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.saved, p.persistErr
}
