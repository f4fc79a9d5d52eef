package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// Querier is the statement surface shared by Database and Transaction, so
// repositories can run the same SQL inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier returns tx when a caller passed one, otherwise the pool.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// IsNoRows reports a single-row lookup that matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports a MySQL duplicate-entry error and the index it hit,
// e.g. "competition_rooms.uk_room_code".
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return "", false
	}
	return duplicateIndex(myErr.Message), true
}

// IsDuplicateOn reports a duplicate-entry error on an index whose name contains index.
// Room creation uses it to tell a code collision, which is retried, from other conflicts.
func IsDuplicateOn(err error, index string) bool {
	key, ok := UniqueViolation(err)
	return ok && strings.Contains(key, index)
}

// duplicateIndex pulls the index name out of "Duplicate entry 'x' for key 'name'".
func duplicateIndex(message string) string {
	const marker = "for key "
	idx := strings.LastIndex(message, marker)
	if idx < 0 {
		return ""
	}
	return strings.Trim(message[idx+len(marker):], " `\"'")
}
