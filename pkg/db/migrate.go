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
	"fmt"
)

// schemaStatements mirror the tables owned by the device management
// application. Only cycle_id and the index are specific to the worker.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id SERIAL PRIMARY KEY,
		name VARCHAR NOT NULL,
		ip_address VARCHAR NOT NULL UNIQUE,
		mac_address VARCHAR UNIQUE,
		location_id INTEGER,
		device_type_id INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS scan_results (
		id SERIAL PRIMARY KEY,
		device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		status BOOLEAN DEFAULT FALSE,
		response_time_ms INTEGER,
		log_message VARCHAR,
		timestamp TIMESTAMPTZ DEFAULT now()
	)`,
	`ALTER TABLE scan_results ADD COLUMN IF NOT EXISTS cycle_id UUID`,
	`CREATE INDEX IF NOT EXISTS idx_scan_results_device_time ON scan_results (device_id, timestamp DESC)`,
}

// EnsureSchema creates the tables the worker reads and writes if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.executor.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: statement %d: %w", ErrMigrate, i, err)
		}
	}

	db.logger.Info().Int("statements", len(schemaStatements)).Msg("database schema ensured")

	return nil
}
