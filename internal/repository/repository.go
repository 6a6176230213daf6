// Package repository provides PostgreSQL persistence for articles, pipeline
// runs and outbox events.
//
// Repositories accept a DBTX so the same code runs against the pool or inside
// a transaction opened with database.RunInTx. Errors are mapped onto the
// domain vocabulary:
//
//   - domain.ErrNotFound: the row does not exist
//   - domain.ErrAlreadyExists: a unique constraint was violated
//   - domain.ErrInvalidInput: required fields are missing
package repository

import (
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/newsroom/content-pipeline/internal/database"
)

// DBTX is the query surface shared by pools and transactions.
type DBTX = database.DBTX

// TxStarter is a DBTX that can open transactions.
type TxStarter = database.TxStarter

const pgUniqueViolation = "23505"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// psql builds statements with PostgreSQL $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// normalizePage clamps limit to [1, maxPageSize] and offset to >= 0.
func normalizePage(limit, offset int) (uint64, uint64) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return uint64(limit), uint64(offset)
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
