// Package directory is the read path for saved plans: listing, search by
// idea or ID, and export.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// Source names where a listing was read from.
type Source string

const (
	SourceHosted Source = "hosted"
	SourceDevice Source = "device"
)

// Loader is the subset of the persistence layer the directory reads from.
type Loader interface {
	HasHosted() bool
	RefreshMirror(ctx context.Context, accountID string) ([]*plan.SavedPlanRecord, error)
	LoadMirror(ctx context.Context, owner plan.Owner) ([]*plan.SavedPlanRecord, error)
}

// Listing is the result of List. Err is set, and Source is SourceDevice,
// when the hosted store could not be read and the mirror was used instead.
type Listing struct {
	Plans  []*plan.SavedPlanRecord `json:"plans"`
	Source Source                  `json:"source"`
	Err    error                   `json:"-"`
}

// Directory lists and searches saved plans.
type Directory struct {
	loader Loader
	logger *logging.Logger
}

// New creates a directory over loader.
func New(loader Loader, logger *logging.Logger) (*Directory, error) {
	if loader == nil {
		return nil, errors.New("plan loader is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Directory{loader: loader, logger: logger.Named("directory")}, nil
}

// List returns the saved plans of owner, newest first. With an account and
// a hosted store the hosted list is authoritative and is mirrored to the
// device; if it cannot be read, the last mirrored list is returned along
// with the hosted error. An anonymous owner only sees its session's list.
func (d *Directory) List(ctx context.Context, owner plan.Owner) (*Listing, error) {
	if owner.Anonymous() || !d.loader.HasHosted() {
		return d.fromMirror(ctx, owner, nil)
	}

	records, err := d.loader.RefreshMirror(ctx, owner.AccountID)
	if err != nil {
		d.logger.Warn(ctx, "hosted plans unavailable, using device mirror", zap.Error(err))
		var perr *plan.PersistenceError
		if !errors.As(err, &perr) {
			err = &plan.PersistenceError{Op: "list", Err: err}
		}
		return d.fromMirror(ctx, owner, err)
	}

	sortNewestFirst(records)
	return &Listing{Plans: records, Source: SourceHosted}, nil
}

func (d *Directory) fromMirror(ctx context.Context, owner plan.Owner, hostedErr error) (*Listing, error) {
	records, err := d.loader.LoadMirror(ctx, owner)
	if err != nil {
		if hostedErr != nil {
			return nil, errors.Join(hostedErr, err)
		}
		return nil, err
	}
	sortNewestFirst(records)
	return &Listing{Plans: records, Source: SourceDevice, Err: hostedErr}, nil
}

func sortNewestFirst(records []*plan.SavedPlanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// FindByIdea returns the newest plan whose idea matches text ignoring case
// and surrounding whitespace. It returns nil if there is none.
func (d *Directory) FindByIdea(ctx context.Context, owner plan.Owner, text string) (*plan.SavedPlanRecord, error) {
	listing, err := d.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	key := plan.NormalizeIdea(text)
	if key == "" {
		return nil, nil
	}
	for _, rec := range listing.Plans {
		if plan.NormalizeIdea(rec.Idea) == key {
			return rec, nil
		}
	}
	return nil, nil
}

// FindByID returns the plan with the given ID, or nil.
func (d *Directory) FindByID(ctx context.Context, owner plan.Owner, id string) (*plan.SavedPlanRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	listing, err := d.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, rec := range listing.Plans {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

// IsSaved reports whether a plan for idea is already saved. Lookup errors
// count as not saved.
func (d *Directory) IsSaved(ctx context.Context, owner plan.Owner, idea string) bool {
	rec, err := d.FindByIdea(ctx, owner, idea)
	if err != nil {
		d.logger.Debug(ctx, "saved plan lookup failed", zap.Error(err))
		return false
	}
	return rec != nil
}

// Export renders a saved plan as indented JSON for download.
func (d *Directory) Export(ctx context.Context, owner plan.Owner, id string) ([]byte, error) {
	rec, err := d.FindByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, plan.ErrPlanNotFound
	}
	data, err := json.MarshalIndent(plan.Export{
		Idea:      rec.Idea,
		Timestamp: rec.CreatedAt,
		Plan:      rec.Plan,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}
