package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/launchplan/internal/persistence"
)

// PlanStore is the hosted startup_plans table.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a store over pool.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

var _ persistence.HostedStore = (*PlanStore)(nil)

func (s *PlanStore) Insert(ctx context.Context, doc *persistence.HostedDocument) error {
	query := `
		INSERT INTO startup_plans (id, user_id, idea, "timestamp", plan_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		doc.ID,
		doc.UserID,
		doc.Idea,
		doc.Timestamp,
		[]byte(doc.PlanData),
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert startup plan: %w", err)
	}
	return nil
}

func (s *PlanStore) ListByAccount(ctx context.Context, accountID string) ([]persistence.HostedDocument, error) {
	query := `
		SELECT id, user_id, idea, "timestamp", plan_data, created_at
		FROM startup_plans WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list startup plans: %w", err)
	}
	defer rows.Close()

	docs := make([]persistence.HostedDocument, 0)
	for rows.Next() {
		var doc persistence.HostedDocument
		var data []byte
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Idea, &doc.Timestamp, &data, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan startup plan: %w", err)
		}
		doc.PlanData = data
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list startup plans: %w", err)
	}
	return docs, nil
}

func (s *PlanStore) DeleteForAccount(ctx context.Context, accountID, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM startup_plans WHERE id = $1 AND user_id = $2`, id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete startup plan: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
