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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carverauto/devicepulse/pkg/models"
)

const insertScanResultSQL = `
INSERT INTO scan_results (
	device_id,
	status,
	response_time_ms,
	log_message,
	timestamp,
	cycle_id
) VALUES ($1, $2, $3, $4, $5, $6)`

// AppendBatch writes every result in one transaction. Either all rows are
// committed or none are. It implements sweeper.ResultStore.
func (db *DB) AppendBatch(ctx context.Context, results []*models.ScanResult) (err error) {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, result := range results {
		args, argErr := buildScanResultArgs(result)
		if argErr != nil {
			return fmt.Errorf("%w: %w", ErrAppendScanResults, argErr)
		}

		batch.Queue(insertScanResultSQL, args...)
	}

	tx, err := db.executor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrAppendScanResults, err)
	}

	defer func() {
		if err == nil {
			return
		}

		// the caller's context may already be done; rollback must still run
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.Error().Err(rbErr).Msg("failed to roll back scan result batch")
		}
	}()

	affected, err := execBatch(ctx, batch, tx.SendBatch, "scan_results")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAppendScanResults, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrAppendScanResults, err)
	}

	db.logger.Debug().
		Int("results", len(results)).
		Int64("rows", affected).
		Msg("appended scan results")

	return nil
}

func buildScanResultArgs(result *models.ScanResult) ([]interface{}, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil result", ErrInvalidScanResult)
	}

	if result.DeviceID <= 0 {
		return nil, fmt.Errorf("%w: device id %d", ErrInvalidScanResult, result.DeviceID)
	}

	if result.ObservedAt.IsZero() {
		return nil, fmt.Errorf("%w: device %d has no observation time", ErrInvalidScanResult, result.DeviceID)
	}

	return []interface{}{
		result.DeviceID,
		result.Reachable,
		toNullableMillis(result.LatencyMillis()),
		toNullableString(result.Message),
		result.ObservedAt.UTC(),
		toNullableUUID(result.CycleID),
	}, nil
}

func toNullableMillis(ms *int64) interface{} {
	if ms == nil {
		return nil
	}

	return int32(*ms)
}

func toNullableString(value string) interface{} {
	if value == "" {
		return nil
	}

	return value
}

// toNullableUUID keeps malformed ids out of the uuid column.
func toNullableUUID(value string) interface{} {
	id, err := uuid.Parse(value)
	if err != nil {
		return nil
	}

	return id
}
