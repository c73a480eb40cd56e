// Package persistence writes assembled plans to the hosted store and keeps
// an on-device mirror of each account's saved list.
//
// The hosted store nests the section bundle under plan_data; the device
// mirror keeps the older flat shape. Both are translated here so that
// nothing above this package sees either storage shape.
package persistence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

const instrumentationName = "github.com/fyrsmithlabs/launchplan/internal/persistence"

// Layer is the write path for saved plans.
type Layer struct {
	hosted HostedStore
	device DeviceStore
	clock  func() time.Time
	newID  func() string
	logger *logging.Logger
	tracer trace.Tracer

	// mu serializes read-modify-write cycles on mirrored lists.
	mu sync.Mutex
}

// Option configures a Layer.
type Option func(*Layer)

// WithClock overrides the time source for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Layer) { l.clock = clock }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(f func() string) Option {
	return func(l *Layer) { l.newID = f }
}

// WithLogger sets the layer's logger.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Layer) { l.logger = lg }
}

// WithTracerProvider sets the provider for persistence spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Layer) { l.tracer = tp.Tracer(instrumentationName) }
}

// NewLayer creates a persistence layer. hosted may be nil, in which case
// every plan is kept on the device only.
func NewLayer(hosted HostedStore, device DeviceStore, opts ...Option) (*Layer, error) {
	if device == nil {
		return nil, errors.New("device store is required")
	}
	l := &Layer{
		hosted: hosted,
		device: device,
		clock:  time.Now,
		newID:  uuid.NewString,
		logger: logging.Nop(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("persistence")
	return l, nil
}

// HasHosted reports whether a hosted store is configured.
func (l *Layer) HasHosted() bool {
	return l.hosted != nil
}

func (l *Layer) start(ctx context.Context, name string, owner plan.Owner) (context.Context, trace.Span) {
	ctx, span := l.tracer.Start(ctx, name)
	span.SetAttributes(attribute.Bool("account.present", !owner.Anonymous()))
	return ctx, span
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Save stores p under a new ID. With an account the record is inserted in
// the hosted store first; a hosted failure is returned as a
// *plan.PersistenceError and the mirror is left alone. The mirror is then
// updated with the new record at the head of the list.
func (l *Layer) Save(ctx context.Context, owner plan.Owner, p *plan.AggregatePlan) (*plan.SavedPlanRecord, error) {
	ctx, span := l.start(ctx, "persistence.save", owner)
	defer span.End()

	accountID := owner.AccountID
	rec := &plan.SavedPlanRecord{
		ID:        l.newID(),
		AccountID: accountID,
		Idea:      p.Idea,
		CreatedAt: l.clock().UTC().Truncate(time.Millisecond),
		Bundle:    p.Snapshot(),
	}
	span.SetAttributes(attribute.String("plan.id", rec.ID))

	if accountID != "" && l.hosted != nil {
		doc, err := encodeHosted(rec)
		if err != nil {
			fail(span, err)
			return nil, &plan.PersistenceError{Op: "encode", Err: err}
		}
		if err := l.hosted.Insert(ctx, doc); err != nil {
			fail(span, err)
			l.logger.Warn(ctx, "hosted plan insert failed", zap.String("plan_id", rec.ID), zap.Error(err))
			return nil, &plan.PersistenceError{Op: "insert", Err: err}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.loadMirror(ctx, owner)
	if err != nil {
		l.logger.Warn(ctx, "mirrored plan list unreadable, starting a new one", zap.Error(err))
		list = nil
	}
	list = prepend(rec, list)
	if err := l.writeMirror(ctx, owner, list); err != nil {
		if accountID == "" || l.hosted == nil {
			fail(span, err)
			return nil, &plan.PersistenceError{Op: "mirror", Err: err}
		}
		l.logger.Warn(ctx, "plan mirror write failed", zap.String("plan_id", rec.ID), zap.Error(err))
	}

	l.logger.Info(ctx, "plan saved", zap.String("plan_id", rec.ID), zap.Bool("hosted", accountID != "" && l.hosted != nil))
	return rec, nil
}

// Remove deletes a saved plan. With an account the hosted delete is scoped
// to that account, so a plan owned by someone else is reported as
// plan.ErrPlanNotFound. The record is then dropped from the owner's mirror;
// an anonymous owner can only remove plans from its own session's list.
func (l *Layer) Remove(ctx context.Context, owner plan.Owner, id string) error {
	ctx, span := l.start(ctx, "persistence.remove", owner)
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return plan.ErrPlanNotFound
	}
	hosted := !owner.Anonymous() && l.hosted != nil

	if hosted {
		ok, err := l.hosted.DeleteForAccount(ctx, owner.AccountID, id)
		if err != nil {
			fail(span, err)
			return &plan.PersistenceError{Op: "delete", Err: err}
		}
		if !ok {
			return plan.ErrPlanNotFound
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.loadMirror(ctx, owner)
	if err != nil {
		if hosted {
			l.logger.Warn(ctx, "mirrored plan list unreadable during remove", zap.Error(err))
			return nil
		}
		fail(span, err)
		return &plan.PersistenceError{Op: "mirror", Err: err}
	}

	kept := make([]*plan.SavedPlanRecord, 0, len(list))
	for _, rec := range list {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(list) {
		if hosted {
			return nil
		}
		return plan.ErrPlanNotFound
	}

	if err := l.writeMirror(ctx, owner, kept); err != nil {
		if hosted {
			l.logger.Warn(ctx, "plan mirror write failed during remove", zap.Error(err))
			return nil
		}
		fail(span, err)
		return &plan.PersistenceError{Op: "mirror", Err: err}
	}
	return nil
}

// Mirror replaces the owner's mirrored list with records.
func (l *Layer) Mirror(ctx context.Context, owner plan.Owner, records []*plan.SavedPlanRecord) error {
	ctx, span := l.start(ctx, "persistence.mirror", owner)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writeMirror(ctx, owner, records); err != nil {
		fail(span, err)
		return err
	}
	return nil
}

// LoadMirror returns the owner's mirrored list. A list never written is
// empty.
func (l *Layer) LoadMirror(ctx context.Context, owner plan.Owner) ([]*plan.SavedPlanRecord, error) {
	ctx, span := l.start(ctx, "persistence.load_mirror", owner)
	defer span.End()

	list, err := l.loadMirror(ctx, owner)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("plans.count", len(list)))
	return list, nil
}

// LoadHosted returns the account's plans from the hosted store.
func (l *Layer) LoadHosted(ctx context.Context, accountID string) ([]*plan.SavedPlanRecord, error) {
	ctx, span := l.start(ctx, "persistence.load_hosted", plan.Account(accountID))
	defer span.End()

	return l.loadHosted(ctx, span, accountID)
}

// RefreshMirror reads the account's hosted plans and replaces its mirrored
// list with them. The mirror stays locked from the hosted read to the
// write, so a plan saved meanwhile is added after the refresh instead of
// being overwritten by it. A failed mirror write is logged; the hosted
// plans are still returned.
func (l *Layer) RefreshMirror(ctx context.Context, accountID string) ([]*plan.SavedPlanRecord, error) {
	owner := plan.Account(accountID)
	ctx, span := l.start(ctx, "persistence.refresh_mirror", owner)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadHosted(ctx, span, accountID)
	if err != nil {
		return nil, err
	}
	if err := l.writeMirror(ctx, owner, records); err != nil {
		l.logger.Warn(ctx, "failed to mirror hosted plans", zap.Error(err))
	}
	return records, nil
}

func (l *Layer) loadHosted(ctx context.Context, span trace.Span, accountID string) ([]*plan.SavedPlanRecord, error) {
	if l.hosted == nil {
		return nil, &plan.PersistenceError{Op: "list", Err: errors.New("no hosted store configured")}
	}
	docs, err := l.hosted.ListByAccount(ctx, accountID)
	if err != nil {
		fail(span, err)
		return nil, &plan.PersistenceError{Op: "list", Err: err}
	}

	out := make([]*plan.SavedPlanRecord, 0, len(docs))
	for i := range docs {
		rec, err := decodeHosted(&docs[i])
		if err != nil {
			l.logger.Warn(ctx, "skipping undecodable hosted plan", zap.String("plan_id", docs[i].ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	span.SetAttributes(attribute.Int("plans.count", len(out)))
	return out, nil
}

func (l *Layer) loadMirror(ctx context.Context, owner plan.Owner) ([]*plan.SavedPlanRecord, error) {
	data, err := l.device.Get(ctx, MirrorKey(owner))
	if errors.Is(err, ErrKeyNotFound) {
		return []*plan.SavedPlanRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMirror(data, func(i int, err error) {
		l.logger.Warn(ctx, "skipping undecodable mirrored plan", zap.Int("index", i), zap.Error(err))
	})
}

func (l *Layer) writeMirror(ctx context.Context, owner plan.Owner, records []*plan.SavedPlanRecord) error {
	data, err := encodeMirror(records)
	if err != nil {
		return err
	}
	return l.device.Put(ctx, MirrorKey(owner), data)
}

// prepend puts rec at the head of list, dropping any copy of it a hosted
// refresh already mirrored.
func prepend(rec *plan.SavedPlanRecord, list []*plan.SavedPlanRecord) []*plan.SavedPlanRecord {
	out := make([]*plan.SavedPlanRecord, 0, len(list)+1)
	out = append(out, rec)
	for _, r := range list {
		if r.ID != rec.ID {
			out = append(out, r)
		}
	}
	return out
}
