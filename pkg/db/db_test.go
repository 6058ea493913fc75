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
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

func newTestDB(exec *fakePgxExecutor) *DB {
	return &DB{executor: exec, logger: logger.NewTestLogger()}
}

func sampleResults() []*models.ScanResult {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	latency := 4 * time.Millisecond

	return []*models.ScanResult{
		{DeviceID: 1, CycleID: uuid.NewString(), Reachable: true, Latency: &latency, ObservedAt: now},
		{DeviceID: 2, CycleID: uuid.NewString(), Reachable: false, Message: "probe timed out", ObservedAt: now},
	}
}

func TestAppendBatch_CommitsAllRows(t *testing.T) {
	tx := &fakeTx{br: &fakeBatchResults{}}
	exec := &fakePgxExecutor{tx: tx}

	require.NoError(t, newTestDB(exec).AppendBatch(context.Background(), sampleResults()))

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	require.NotNil(t, tx.batch)
	assert.Equal(t, 2, tx.batch.Len())
	assert.Equal(t, 2, tx.br.execCalls)
	assert.Equal(t, 1, tx.br.closeCalls)
}

func TestAppendBatch_InsertFailureRollsBackWholeBatch(t *testing.T) {
	tx := &fakeTx{br: &fakeBatchResults{execErrAt: 1, execErr: errInsertFailed}}
	exec := &fakePgxExecutor{tx: tx}

	err := newTestDB(exec).AppendBatch(context.Background(), sampleResults())

	require.ErrorIs(t, err, ErrAppendScanResults)
	require.ErrorIs(t, err, errInsertFailed)
	assert.Contains(t, err.Error(), "scan_results batch exec (command 1)")
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack, "a partial batch must never be committed")
}

func TestAppendBatch_CommitFailureRollsBack(t *testing.T) {
	tx := &fakeTx{br: &fakeBatchResults{}, commitErr: errCommitFailed}

	err := newTestDB(&fakePgxExecutor{tx: tx}).AppendBatch(context.Background(), sampleResults())

	require.ErrorIs(t, err, errCommitFailed)
	assert.True(t, tx.rolledBack)
}

func TestAppendBatch_BeginFailure(t *testing.T) {
	exec := &fakePgxExecutor{beginErr: errBeginFailed}

	err := newTestDB(exec).AppendBatch(context.Background(), sampleResults())

	require.ErrorIs(t, err, errBeginFailed)
	require.ErrorIs(t, err, ErrAppendScanResults)
}

func TestAppendBatch_InvalidResultNeverOpensTransaction(t *testing.T) {
	exec := &fakePgxExecutor{tx: &fakeTx{br: &fakeBatchResults{}}}
	results := sampleResults()
	results[1].ObservedAt = time.Time{}

	err := newTestDB(exec).AppendBatch(context.Background(), results)

	require.ErrorIs(t, err, ErrInvalidScanResult)
	assert.Zero(t, exec.began)
}

func TestAppendBatch_EmptyIsNoop(t *testing.T) {
	exec := &fakePgxExecutor{}

	require.NoError(t, newTestDB(exec).AppendBatch(context.Background(), nil))
	assert.Zero(t, exec.began)
}

func TestBuildScanResultArgs(t *testing.T) {
	results := sampleResults()

	args, err := buildScanResultArgs(results[0])
	require.NoError(t, err)
	require.Len(t, args, 6)
	assert.Equal(t, int64(1), args[0])
	assert.Equal(t, true, args[1])
	assert.Equal(t, int32(4), args[2])
	assert.Nil(t, args[3])
	assert.IsType(t, uuid.UUID{}, args[5])

	args, err = buildScanResultArgs(results[1])
	require.NoError(t, err)
	assert.Nil(t, args[2], "unreachable results carry no response time")
	assert.Equal(t, "probe timed out", args[3])

	results[1].CycleID = "not-a-uuid"
	args, err = buildScanResultArgs(results[1])
	require.NoError(t, err)
	assert.Nil(t, args[5])

	_, err = buildScanResultArgs(&models.ScanResult{DeviceID: 0, ObservedAt: time.Now()})
	require.ErrorIs(t, err, ErrInvalidScanResult)

	_, err = buildScanResultArgs(nil)
	require.ErrorIs(t, err, ErrInvalidScanResult)
}

func TestListDevices(t *testing.T) {
	rows := &fakeRows{data: [][]any{
		{int64(1), "router", "10.0.0.1"},
		{int64(2), "printer", "10.0.0.2"},
	}}
	exec := &fakePgxExecutor{rows: rows}

	devices, err := newTestDB(exec).ListDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []models.Device{
		{ID: 1, Name: "router", Address: "10.0.0.1"},
		{ID: 2, Name: "printer", Address: "10.0.0.2"},
	}, devices)
	assert.True(t, rows.closed)
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "ORDER BY id")
}

func TestListDevices_Empty(t *testing.T) {
	devices, err := newTestDB(&fakePgxExecutor{rows: &fakeRows{}}).ListDevices(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestListDevices_Errors(t *testing.T) {
	_, err := newTestDB(&fakePgxExecutor{queryErr: errQueryFailed}).ListDevices(context.Background())
	require.ErrorIs(t, err, ErrListDevices)
	require.ErrorIs(t, err, errQueryFailed)

	rows := &fakeRows{data: [][]any{{int64(1), "router", "10.0.0.1"}}, err: errRowsFailed}
	_, err = newTestDB(&fakePgxExecutor{rows: rows}).ListDevices(context.Background())
	require.ErrorIs(t, err, errRowsFailed)
	assert.True(t, rows.closed)
}

func TestEnsureSchema(t *testing.T) {
	exec := &fakePgxExecutor{}

	require.NoError(t, newTestDB(exec).EnsureSchema(context.Background()))
	require.Len(t, exec.execs, len(schemaStatements))
	assert.Contains(t, exec.execs[1], "CREATE TABLE IF NOT EXISTS scan_results")
	assert.Contains(t, exec.execs[2], "cycle_id UUID")
}

func TestEnsureSchema_StopsOnFailure(t *testing.T) {
	exec := &fakePgxExecutor{execErrAt: 1, execErr: errExecFailed}

	err := newTestDB(exec).EnsureSchema(context.Background())

	require.ErrorIs(t, err, ErrMigrate)
	require.ErrorIs(t, err, errExecFailed)
	assert.Len(t, exec.execs, 2)
}

func TestConnString(t *testing.T) {
	raw := connString(&models.DatabaseConfig{
		Host:            "db.internal",
		Database:        "devices",
		Username:        "scanner",
		Password:        "p@ss word",
		ApplicationName: "devicepulse-scan-worker",
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/devices", u.Path)
	assert.Equal(t, "scanner", u.User.Username())

	password, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", password)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "devicepulse-scan-worker", u.Query().Get("application_name"))
}

func TestPingWithoutPool(t *testing.T) {
	require.ErrorIs(t, (&DB{}).Ping(context.Background()), ErrDatabaseNotInitialized)
}
