package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type txKey struct{}

// Transactor runs units of work in a postgres transaction carried by the context.
type Transactor struct {
	db core.DB
}

var _ core.Transactor = (*Transactor)(nil) // interface compliance check

func NewTransactor(db core.DB) *Transactor {
	return &Transactor{db: db}
}

// RunInTx joins the ongoing transaction, if any.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Wrapf(err, "rolling back: %v", rerr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// executor returns the ctx transaction, or db.
func executor(ctx context.Context, db core.DBExecutor) core.DBExecutor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

func pqError(err error) (*pq.Error, bool) {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return pqErr, ok
}

func isViolation(err error, code string) bool {
	pqErr, ok := pqError(err)
	return ok && string(pqErr.Code) == code
}

func violatedConstraint(err error) string {
	if pqErr, ok := pqError(err); ok {
		return pqErr.Constraint
	}
	return ""
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// conditions accumulates WHERE clauses written with `?` placeholders.
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, args ...interface{}) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func orderBy(ordering []core.DBOrdering, prefix string) string {
	if len(ordering) == 0 {
		return ""
	}
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		ord.Field = prefix + ord.Field
		list = append(list, ord.String())
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}
