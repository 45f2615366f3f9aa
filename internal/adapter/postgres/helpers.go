package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
)

// uniqueViolation is the SQLSTATE for a duplicate primary or unique key.
const uniqueViolation = "23505"

// scannable is satisfied by both pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// nullableID maps an unset workflow request id onto SQL NULL so the uuid
// column accepts it.
func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// crewIDArray keeps crew_ids NOT NULL for requests with no members.
func crewIDArray(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// wrapNotFound turns pgx.ErrNoRows into domain.ErrNotFound.
func wrapNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// wrapConflict turns a unique-key violation into domain.ErrConflict.
func wrapConflict(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// expectOne reports domain.ErrNotFound when an update or delete matched no row.
func expectOne(tag pgconn.CommandTag, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
