package database

import (
	"errors"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model errors and error classes
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502", "22001": // not_null_violation, string_data_right_truncation
			return models.Classify(models.ClassInvalidArgument, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return models.Classify(models.ClassUnavailable, err)
		case "53300": // too_many_connections
			return models.Classify(models.ClassResourceExhausted, err)
		case "57014": // query_canceled
			return models.Classify(models.ClassCancelled, err)
		}
		return models.Classify(models.ClassInternal, err)
	}

	if pgconn.Timeout(err) {
		return models.Classify(models.ClassDeadlineExceeded, err)
	}

	return err
}
