// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/arkforge/eventstore/internal/eventstore"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Store{pool: mock, cfg: Config{}}, mock
}

func TestAppend_FreshStream(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT current_version, deleted FROM streams").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO streams").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rows := pgxmock.NewRows([]string{"global_sequence"}).AddRow(int64(1))
	mock.ExpectQuery("INSERT INTO events").WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO stream_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectExec("UPDATE streams SET current_version").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := s.Append(ctx, eventstore.AppendRequest{
		Stream:          "orders-1",
		ExpectedVersion: eventstore.ExpectedNoStream,
		Events:          []eventstore.NewEvent{{Type: "order.created", Payload: []byte(`{}`)}},
	})
	require.NoError(t, err)
	require.Equal(t, eventstore.StreamVersion(1), res.FirstVersion)
	require.Equal(t, eventstore.GlobalSequence(1), res.FirstSequence)
	require.NoError(t, mock.ExpectationsWereMet())
}
