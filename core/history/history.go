// Package history carries the actor and request information that the database audit triggers
// attach to every row they record.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// Context is what the audit triggers read back from the transaction-local settings.
type Context struct {
	ActorID   *string
	ActorName *string
	UserAgent string
	Metadata  map[string]interface{}
}

// ActorInfo identifies who performs a mutation. Both fields are nil when the actor is unknown.
type ActorInfo struct {
	ActorID   *string
	ActorName *string
}

type Request struct {
	UserAgent string
}

// Entry is one audit row: a single field change of an entity, or its insertion/deletion.
type Entry struct {
	ID         int64                  `json:"id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Operation  string                 `json:"operation"` // INSERT | UPDATE | DELETE
	Field      string                 `json:"field,omitempty"`
	OldValue   *string                `json:"old_value"`
	NewValue   *string                `json:"new_value"`
	ActorID    *string                `json:"actor_id"`
	ActorName  *string                `json:"actor_name"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	ChangedAt  time.Time              `json:"changed_at"`
}

type (
	Repository interface {
		// SetContext makes hc visible to the audit triggers until the end of tx.
		SetContext(ctx context.Context, hc Context, tx core.DBTransactor) error
		// QueryEntries returns the audit rows of an entity, newest first.
		QueryEntries(ctx context.Context, entityType, entityID string) ([]Entry, error)
	}

	Service interface {
		GetActorInfo(ctx context.Context, userID string) ActorInfo
		RunInTx(ctx context.Context, hc Context, fn func(tx core.DBTransactor) error) error
		QueryEntries(ctx context.Context, entityType, entityID string) ([]Entry, error)
	}

	service struct {
		db     core.DB
		repo   Repository
		usrSvc user.Service
		logger core.Logger
		txOpts *sql.TxOptions
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service, logger core.Logger) Service {
	return &service{
		db:     db,
		repo:   repo,
		usrSvc: usrSvc,
		logger: logger,
		txOpts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
}

// RequestContext extracts the request metadata recorded alongside the actor.
func RequestContext(r *http.Request) Request {
	if r == nil {
		return Request{}
	}
	return Request{UserAgent: r.UserAgent()}
}

// NewContext assembles the history context of a mutation.
func NewContext(actor ActorInfo, req Request, metadata map[string]interface{}) Context {
	return Context{
		ActorID:   actor.ActorID,
		ActorName: actor.ActorName,
		UserAgent: req.UserAgent,
		Metadata:  metadata,
	}
}

// GetActorInfo never fails: an unknown actor is recorded with empty attribution.
func (svc *service) GetActorInfo(ctx context.Context, userID string) ActorInfo {
	if userID == "" {
		return ActorInfo{}
	}
	usr, err := svc.usrSvc.GetByID(ctx, userID)
	if err != nil {
		if !core.IsNotFound(err) {
			svc.logger.Warn(fmt.Sprintf("looking up history actor %s: %v", userID, err), err)
		}
		return ActorInfo{}
	}
	id, name := usr.ID, usr.DisplayName()
	return ActorInfo{ActorID: &id, ActorName: &name}
}

// RunInTx runs fn in a new transaction whose first statement sets the history context.
// The transaction is committed when fn succeeds and rolled back otherwise, panics included.
func (svc *service) RunInTx(ctx context.Context, hc Context, fn func(tx core.DBTransactor) error) (err error) {
	tx, err := svc.db.BeginTx(ctx, svc.txOpts)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			svc.logger.Error(fmt.Sprintf("rolling back transaction: %v", rbErr), rbErr)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err = svc.repo.SetContext(ctx, hc, tx); err != nil {
		return errors.Wrap(err, "setting history context")
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	committed = true
	return nil
}

func (svc *service) QueryEntries(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	entries, err := svc.repo.QueryEntries(ctx, entityType, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "querying history entries")
	}
	return entries, nil
}
