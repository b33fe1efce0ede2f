package repository

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqInvalidText         = "22P02"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// lookupError maps a missing row, or an id Postgres cannot even parse, to NotFoundError.
func lookupError(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewNotFound(entity, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidText {
		return appErrors.NewNotFound(entity, id)
	}
	return err
}

// writeError maps constraint violations raised by inserts and updates.
func writeError(err error, entity string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqForeignKeyViolation:
		return appErrors.NewValidation("%s references a record that does not exist", entity)
	case pqUniqueViolation:
		return appErrors.NewConflict("%s already exists", entity)
	case pqInvalidText:
		return appErrors.NewValidation("%s has a malformed id", entity)
	}
	return err
}

// requireRow turns a statement that touched no row into NotFoundError.
func requireRow(res sql.Result, err error, entity, id string) error {
	if err != nil {
		return lookupError(err, entity, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewNotFound(entity, id)
	}
	return nil
}

// jsonMap renders a map as a jsonb parameter; lib/pq would send []byte as bytea.
func jsonMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanJSONMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func rawJSONParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
