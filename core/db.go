package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	// Transactor runs fn inside a unit of work.
	// Repositories pick the ongoing transaction up from the context given to fn.
	Transactor interface {
		RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
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

// AllowedOrderings keeps the orderings whose field is in allowed (json name -> column).
func AllowedOrderings(orderings []DBOrdering, allowed map[string]string) []DBOrdering {
	out := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := allowed[ord.Field]; ok {
			out = append(out, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return out
}
