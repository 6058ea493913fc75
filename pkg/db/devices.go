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

	"github.com/carverauto/devicepulse/pkg/models"
)

const listDevicesSQL = `
SELECT id, name, ip_address
FROM devices
ORDER BY id`

// ListDevices returns every device ordered by id. It implements registry.Registry.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := db.executor.Query(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListDevices, err)
	}
	defer rows.Close()

	devices := make([]models.Device, 0)

	for rows.Next() {
		var d models.Device

		if err := rows.Scan(&d.ID, &d.Name, &d.Address); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrListDevices, err)
		}

		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListDevices, err)
	}

	return devices, nil
}
