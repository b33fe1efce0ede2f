package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLFiles_LexicalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}

	files, err := sqlFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "001_a.sql"), filepath.Join(dir, "002_b.sql")}, files)
}

func TestApplyFile(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer conn.Close()

	file := filepath.Join(t.TempDir(), "001_init.sql")
	require.NoError(t, os.WriteFile(file, []byte("CREATE TABLE media (id UUID);"), 0o644))

	mock.ExpectExec("CREATE TABLE media (id UUID);").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, applyFile(context.Background(), conn, file))

	mock.ExpectExec("CREATE TABLE media (id UUID);").WillReturnError(errors.New("syntax error"))
	err = applyFile(context.Background(), conn, file)
	assert.ErrorContains(t, err, "execute")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFile_MissingFile(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	err = applyFile(context.Background(), conn, filepath.Join(t.TempDir(), "missing.sql"))
	assert.ErrorContains(t, err, "read")
}
