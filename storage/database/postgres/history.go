package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/storage/database"
)

type historyRow struct {
	ID         int64          `db:"id"`
	EntityType string         `db:"entity_type"`
	EntityID   string         `db:"entity_id"`
	Operation  string         `db:"operation"`
	Field      string         `db:"field"`
	OldValue   null.String    `db:"old_value"`
	NewValue   null.String    `db:"new_value"`
	ActorID    null.String    `db:"actor_id"`
	ActorName  null.String    `db:"actor_name"`
	UserAgent  string         `db:"user_agent"`
	Metadata   types.JSONText `db:"metadata"`
	ChangedAt  time.Time      `db:"changed_at"`
}

func (r historyRow) entry() history.Entry {
	return history.Entry{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Operation:  r.Operation,
		Field:      r.Field,
		OldValue:   r.OldValue.Ptr(),
		NewValue:   r.NewValue.Ptr(),
		ActorID:    r.ActorID.Ptr(),
		ActorName:  r.ActorName.Ptr(),
		UserAgent:  r.UserAgent,
		Metadata:   jsonMap(r.Metadata),
		ChangedAt:  r.ChangedAt.UTC(),
	}
}

type historyRepository struct {
	baseRepository
}

var _ history.Repository = (*historyRepository)(nil)

func NewHistoryRepository(db *database.DB) history.Repository {
	return &historyRepository{baseRepository{db: db}}
}

// SetContext stores hc in transaction-local settings, read back by the record_history() trigger.
func (repo *historyRepository) SetContext(ctx context.Context, hc history.Context, tx core.DBTransactor) error {
	sqlxTx, ok := tx.(*sqlx.Tx)
	if !ok {
		return errors.Errorf("history context requires a database transaction, got %T", tx)
	}
	metadata, err := toJSON(hc.Metadata)
	if err != nil {
		return err
	}

	_, err = sqlxTx.ExecContext(ctx,
		`SELECT set_config('app.history_actor_id', $1, true),
		        set_config('app.history_actor_name', $2, true),
		        set_config('app.history_user_agent', $3, true),
		        set_config('app.history_metadata', $4, true)`,
		null.StringFromPtr(hc.ActorID).String, null.StringFromPtr(hc.ActorName).String, hc.UserAgent, string(metadata),
	)
	return errors.Wrap(err, "setting history context")
}

func (repo *historyRepository) QueryEntries(ctx context.Context, entityType, entityID string) ([]history.Entry, error) {
	var rows []historyRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, entity_type, entity_id, operation, field, old_value, new_value, actor_id, actor_name,
		        user_agent, metadata, changed_at
		 FROM history_entries WHERE entity_type = $1 AND entity_id = $2 ORDER BY id DESC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying history entries")
	}
	entries := make([]history.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}
