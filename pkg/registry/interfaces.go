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

//go:generate mockgen -destination=mock_registry.go -package=registry github.com/carverauto/devicepulse/pkg/registry Registry

// Package registry defines the read-only device roster used by scan cycles.
package registry

import (
	"context"

	"github.com/carverauto/devicepulse/pkg/models"
)

// Registry returns a point-in-time, ordered snapshot of all monitored devices.
type Registry interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
}
