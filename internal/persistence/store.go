package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// ErrKeyNotFound is returned by a DeviceStore for a key never written.
var ErrKeyNotFound = errors.New("key not found")

// legacyMirrorKey is the device key of the local user's saved-plans list.
const legacyMirrorKey = "savedStartupPlans"

// MirrorKey returns the device key holding owner's mirrored list. Accounts
// and anonymous sessions each get their own key; an owner with neither
// keeps the legacy key.
func MirrorKey(owner plan.Owner) string {
	switch {
	case owner.AccountID != "":
		return legacyMirrorKey + ":" + owner.AccountID
	case owner.SessionID != "":
		return legacyMirrorKey + ".session:" + owner.SessionID
	default:
		return legacyMirrorKey
	}
}

// HostedDocument is one row of the hosted startup_plans table. The section
// bundle is nested under PlanData.
type HostedDocument struct {
	ID        string
	UserID    string
	Idea      string
	Timestamp time.Time
	PlanData  json.RawMessage
	CreatedAt time.Time
}

// HostedStore is the account-scoped relational plan store.
type HostedStore interface {
	Insert(ctx context.Context, doc *HostedDocument) error

	// ListByAccount returns the account's rows, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]HostedDocument, error)

	// DeleteForAccount removes id only if it belongs to accountID. It
	// reports false when nothing matched.
	DeleteForAccount(ctx context.Context, accountID, id string) (bool, error)
}

// DeviceStore is the on-device key/value fallback store.
type DeviceStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
