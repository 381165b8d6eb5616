// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSchema_CompatibleVersionPasses(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"version"}).AddRow("1.2.0")
	mock.ExpectQuery("SELECT version FROM eventstore_schema_info").WillReturnRows(rows)

	err := s.CheckSchema(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckSchema_OlderVersionFails(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"version"}).AddRow("0.9.0")
	mock.ExpectQuery("SELECT version FROM eventstore_schema_info").WillReturnRows(rows)

	err := s.CheckSchema(context.Background())
	assert.Error(t, err)
}

func TestCheckSchema_NoRowsMeansUnmigrated(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT version FROM eventstore_schema_info").WillReturnError(pgx.ErrNoRows)

	err := s.CheckSchema(context.Background())
	assert.Error(t, err)
}

func TestCheckSchema_PrefixedTableName(t *testing.T) {
	s, mock := newMockStore(t)
	s.cfg = Config{SchemaPrefix: "tenant_a"}

	rows := pgxmock.NewRows([]string{"version"}).AddRow("1.0.0")
	mock.ExpectQuery(`SELECT version FROM tenant_a\.eventstore_schema_info`).WillReturnRows(rows)

	err := s.CheckSchema(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
