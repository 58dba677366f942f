package inmemdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
)

type historyRepository struct {
	db *DB
}

var _ history.Repository = (*historyRepository)(nil)

func NewHistoryRepository(db *DB) history.Repository {
	return &historyRepository{db: db}
}

func (repo *historyRepository) SetContext(ctx context.Context, hc history.Context, tx core.DBTransactor) error {
	t := txOf([]core.DBTransactor{tx})
	if t == nil {
		return errors.Errorf("history context requires a running transaction, got %T", tx)
	}
	hc.Metadata = copyMap(hc.Metadata)
	t.hc = &hc
	return nil
}

func (repo *historyRepository) QueryEntries(ctx context.Context, entityType, entityID string) ([]history.Entry, error) {
	var entries []history.Entry
	err := repo.db.read(nil, func(t *tables) error {
		for i := len(t.history) - 1; i >= 0; i-- {
			if e := t.history[i]; e.EntityType == entityType && e.EntityID == entityID {
				entries = append(entries, e)
			}
		}
		return nil
	})
	return entries, err
}
