/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errFakeBatchResultsQuery = errors.New("Query not implemented in fakeBatchResults")
	errFakeBatchRowScan      = errors.New("Scan not implemented in fakeBatchRow")
	errBoom                  = errors.New("boom")
	errCloseFailed           = errors.New("close failed")
	errInsertFailed          = errors.New("insert failed")
	errCommitFailed          = errors.New("commit failed")
	errBeginFailed           = errors.New("begin failed")
	errQueryFailed           = errors.New("query failed")
	errRowsFailed            = errors.New("rows failed")
	errExecFailed            = errors.New("exec failed")
)

type fakeBatchResults struct {
	execCalls int
	execErrAt int
	execErr   error

	closeCalls int
	closeErr   error
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	defer func() { f.execCalls++ }()

	if f.execErr != nil && f.execCalls == f.execErrAt {
		return pgconn.CommandTag{}, f.execErr
	}

	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeBatchResults) Query() (pgx.Rows, error) {
	return nil, errFakeBatchResultsQuery
}

type fakeBatchRow struct{}

func (fakeBatchRow) Scan(...any) error { return errFakeBatchRowScan }

func (f *fakeBatchResults) QueryRow() pgx.Row {
	return fakeBatchRow{}
}

func (f *fakeBatchResults) Close() error {
	f.closeCalls++
	return f.closeErr
}

// fakeTx records transaction outcomes. Unused pgx.Tx methods panic via the nil embed.
type fakeTx struct {
	pgx.Tx

	br        *fakeBatchResults
	batch     *pgx.Batch
	commitErr error

	committed  bool
	rolledBack bool
}

func (t *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	t.batch = b
	return t.br
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}

	t.committed = true

	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}

	t.rolledBack = true

	return nil
}

type fakeRows struct {
	pgx.Rows

	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}

	r.pos++

	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: want %d columns, got %d", len(dest), len(row))
	}

	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = row[i].(int64)
		case *string:
			*p = row[i].(string)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}

	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() { r.closed = true }

type fakePgxExecutor struct {
	tx       *fakeTx
	beginErr error
	began    int

	rows     *fakeRows
	queryErr error
	queries  []string

	execErrAt int
	execErr   error
	execs     []string
}

func (f *fakePgxExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)

	if f.execErr != nil && len(f.execs)-1 == f.execErrAt {
		return pgconn.CommandTag{}, f.execErr
	}

	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakePgxExecutor) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)

	if f.queryErr != nil {
		return nil, f.queryErr
	}

	return f.rows, nil
}

func (f *fakePgxExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeBatchRow{}
}

func (f *fakePgxExecutor) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	if f.tx != nil {
		return f.tx.br
	}

	return &fakeBatchResults{}
}

func (f *fakePgxExecutor) Begin(context.Context) (pgx.Tx, error) {
	f.began++

	if f.beginErr != nil {
		return nil, f.beginErr
	}

	return f.tx, nil
}
