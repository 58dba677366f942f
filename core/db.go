package core

import (
	"context"
	"database/sql"
)

type (
	// DBTransactor is a unit of work shared by the repositories taking part in the same transaction.
	// Storage implementations know how to turn it back into their own executor.
	DBTransactor interface {
		Commit() error
		Rollback() error
	}

	DB interface {
		BeginTx(context.Context, *sql.TxOptions) (DBTransactor, error)
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops the orderings on fields that are not allowed.
func FilterOrderings(ordering []DBOrdering, allowed ...string) []DBOrdering {
	if len(ordering) == 0 {
		return nil
	}
	kept := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if StringInSlice(ord.Field, allowed) {
			kept = append(kept, ord)
		}
	}
	return kept
}
