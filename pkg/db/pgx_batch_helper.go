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

	"github.com/jackc/pgx/v5"
)

// execBatch sends batch and drains every result. It returns the number of
// affected rows. Results are always closed, and a close error is reported
// when nothing else failed.
func execBatch(
	ctx context.Context,
	batch *pgx.Batch,
	send func(context.Context, *pgx.Batch) pgx.BatchResults,
	operation string,
) (affected int64, err error) {
	if batch == nil || batch.Len() == 0 {
		return 0, nil
	}

	br := send(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%s batch close: %w", operation, closeErr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		tag, execErr := br.Exec()
		if execErr != nil {
			return affected, fmt.Errorf("%s batch exec (command %d): %w", operation, i, execErr)
		}

		affected += tag.RowsAffected()
	}

	return affected, nil
}
