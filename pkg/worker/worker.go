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

// Package worker assembles the scan worker from its configuration.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/carverauto/devicepulse/pkg/db"
	srHttp "github.com/carverauto/devicepulse/pkg/http"
	"github.com/carverauto/devicepulse/pkg/kafka"
	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
	"github.com/carverauto/devicepulse/pkg/natsutil"
	"github.com/carverauto/devicepulse/pkg/registry"
	"github.com/carverauto/devicepulse/pkg/scan"
	"github.com/carverauto/devicepulse/pkg/sweeper"
)

const statusShutdownTimeout = 5 * time.Second

var errUnknownPublishKind = errors.New("unknown publish kind")

// publisher is a sweeper.Publisher that owns a connection.
type publisher interface {
	sweeper.Publisher
	io.Closer
}

// Worker runs the scan scheduler and, optionally, the status server.
type Worker struct {
	config    *models.WorkerConfig
	scheduler *sweeper.Scheduler
	status    *sweeper.StatusTracker
	server    *srHttp.StatusServer
	closers   []func() error
	logger    logger.Logger

	registry  registry.Registry
	store     sweeper.ResultStore
	prober    scan.Prober
	publisher sweeper.Publisher
	onCycle   func(*models.CycleReport)
}

// Option overrides a collaborator that would otherwise be built from config.
type Option func(*Worker)

// WithRegistry replaces the configured device registry.
func WithRegistry(r registry.Registry) Option {
	return func(w *Worker) { w.registry = r }
}

// WithResultStore replaces the store selected by store.kind.
func WithResultStore(s sweeper.ResultStore) Option {
	return func(w *Worker) { w.store = s }
}

// WithProber replaces the prober selected by probe.method.
func WithProber(p scan.Prober) Option {
	return func(w *Worker) { w.prober = p }
}

// WithPublisher replaces the NATS or Kafka publisher selected by publish.kind.
func WithPublisher(p sweeper.Publisher) Option {
	return func(w *Worker) { w.publisher = p }
}

// WithCycleHook is called after every finished cycle.
func WithCycleHook(fn func(*models.CycleReport)) Option {
	return func(w *Worker) { w.onCycle = fn }
}

// New builds a worker. It dials the database and the publisher when the
// configuration asks for them; anything already supplied through opts is
// left alone.
func New(ctx context.Context, cfg *models.WorkerConfig, log logger.Logger, opts ...Option) (*Worker, error) {
	w := &Worker{
		config: cfg,
		status: sweeper.NewStatusTracker(),
		logger: log,
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := w.build(ctx); err != nil {
		_ = w.close()
		return nil, err
	}

	return w, nil
}

func (w *Worker) build(ctx context.Context) error {
	cfg := w.config

	var database *db.DB

	if w.needsDatabase() {
		dbPool, err := db.NewPool(ctx, &cfg.Database, w.logger)
		if err != nil {
			return err
		}

		database = db.New(dbPool, w.logger)
		w.closers = append(w.closers, func() error {
			database.Close()
			return nil
		})

		if cfg.Database.Migrate {
			if err := database.EnsureSchema(ctx); err != nil {
				return err
			}
		}
	}

	if w.registry == nil {
		if cfg.Registry.Source == models.RegistrySourceStatic {
			w.registry = registry.NewStatic(cfg.Registry.Devices)
		} else {
			w.registry = database
		}
	}

	if w.store == nil {
		if cfg.Store.Kind == models.StoreKindMemory {
			w.store = sweeper.NewInMemoryStore(cfg.Store.MemoryCapacity, w.logger)
		} else {
			w.store = database
		}
	}

	if w.prober == nil {
		prober, err := scan.NewProber(&cfg.Probe, w.logger)
		if err != nil {
			return err
		}

		w.prober = prober
	}

	if w.publisher == nil && cfg.Publish.Kind != "" {
		p, err := newPublisher(ctx, &cfg.Publish, w.logger)
		if err != nil {
			return err
		}

		w.publisher = p
		w.closers = append(w.closers, p.Close)
	}

	var coordinatorOpts []sweeper.CoordinatorOption
	if w.publisher != nil {
		coordinatorOpts = append(coordinatorOpts, sweeper.WithPublisher(w.publisher))
	}

	recorder := sweeper.NewRecorder(w.store, cfg.PersistTimeout.Std(), w.logger)
	coordinator := sweeper.NewCoordinator(
		sweeper.NewCoordinatorConfig(cfg), w.registry, w.prober, recorder, w.logger, coordinatorOpts...)

	w.scheduler = sweeper.NewScheduler(coordinator, cfg.Interval.Std(), w.status, w.logger)
	if w.onCycle != nil {
		w.scheduler.OnCycle(w.onCycle)
	}

	if cfg.StatusAddr != "" {
		w.server = srHttp.NewStatusServer(cfg.StatusAddr, w.status, w.logger)
	}

	return nil
}

func (w *Worker) needsDatabase() bool {
	cfg := w.config

	return (w.registry == nil && cfg.Registry.Source == models.RegistrySourcePostgres) ||
		(w.store == nil && cfg.Store.Kind == models.StoreKindPostgres)
}

func newPublisher(ctx context.Context, cfg *models.PublishConfig, log logger.Logger) (publisher, error) {
	switch cfg.Kind {
	case models.PublishKindNATS:
		p, err := natsutil.ConnectWithEventPublisher(ctx, cfg, log)
		if err != nil {
			return nil, err
		}

		return p, nil
	case models.PublishKindKafka:
		return kafka.NewProducer(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownPublishKind, cfg.Kind)
	}
}

// Status returns the scheduler's running totals.
func (w *Worker) Status() models.WorkerStatus {
	return w.status.Status()
}

// Start implements lifecycle.Service. It blocks until ctx is cancelled and
// the cycle in progress, if any, has finished.
func (w *Worker) Start(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		return w.scheduler.Run(ctx)
	})

	if w.server != nil {
		p.Go(w.serveStatus)
	}

	return p.Wait()
}

func (w *Worker) serveStatus(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.config.StatusAddr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}

	errCh := make(chan error, 1)

	go func() { errCh <- w.server.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusShutdownTimeout)
	defer cancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn().Err(err).Msg("Status server did not shut down cleanly")
	}

	return <-errCh
}

// Stop implements lifecycle.Service and releases connections.
func (w *Worker) Stop(_ context.Context) error {
	return w.close()
}

func (w *Worker) close() error {
	var errs []error

	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	w.closers = nil

	return errors.Join(errs...)
}
