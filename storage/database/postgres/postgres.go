// Package postgres implements the core repositories on PostgreSQL with sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database"
)

// execer is what *sqlx.DB and *sqlx.Tx have in common.
type execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type baseRepository struct {
	db *database.DB
}

// getExec returns the transaction the repository method was called with, or the database.
func (repo baseRepository) getExec(tx []core.DBTransactor) execer {
	if len(tx) > 0 && tx[0] != nil {
		if sqlxTx, ok := tx[0].(*sqlx.Tx); ok {
			return sqlxTx
		}
	}
	return repo.db.DB
}

// trapNoRowsErr maps "no rows" to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

// add appends cond, in which every "?" is replaced by the next positional argument.
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func toJSON(v interface{}) (types.JSONText, error) {
	if v == nil {
		return types.JSONText("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling json")
	}
	return types.JSONText(b), nil
}

func jsonMap(txt types.JSONText) map[string]interface{} {
	m := make(map[string]interface{})
	if len(txt) > 0 {
		_ = txt.Unmarshal(&m)
	}
	return m
}
