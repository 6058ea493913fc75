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

// Package db reads the device roster from PostgreSQL and appends scan results.
package db

import (
	"context"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxExecutor is the subset of *pgxpool.Pool the package uses. Tests swap in fakes.
type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is the PostgreSQL collaborator. It serves as both the device registry and
// the scan result store.
type DB struct {
	pool     *pgxpool.Pool
	executor pgxExecutor
	logger   logger.Logger
}

// New wraps an established pool.
func New(pool *pgxpool.Pool, log logger.Logger) *DB {
	return &DB{
		pool:     pool,
		executor: pool,
		logger:   log,
	}
}

// Close releases the pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return ErrDatabaseNotInitialized
	}

	return db.pool.Ping(ctx)
}
