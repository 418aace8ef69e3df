package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/godamri/helix-audit/http/response"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapError translates store errors into API error codes for the browse
// surface. Engine-specific classes are recognized for Postgres; sqlite
// and everything else fall through to the system bucket.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if IsNoRows(err) {
		return fmt.Errorf("%s: %w", response.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %s", response.ErrAlreadyExists, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found", response.ErrConflict)
		case "23514": // check_violation
			return fmt.Errorf("%s: %s", response.ErrValidation, pgErr.Message)
		case "40001": // serialization_failure
			return fmt.Errorf("%s: retry transaction", response.ErrVersionMismatch)
		case "57014": // query_canceled
			return fmt.Errorf("%s: query timeout", response.ErrGatewayTimeout)
		}
	}

	return fmt.Errorf("%s: %w", response.ErrSystem, err)
}

// IsNoRows matches both the stdlib sentinel and pgx's own, since rows
// may come through either path depending on the engine.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
