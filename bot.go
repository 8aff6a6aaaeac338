// Copyright 2025 The Gompei Bot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gompei wires the bot's components together: the database, the
// event bus, the platform gateway, the role reconciler, the slash command
// surface, and the verification feed poller.
package gompei

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gompeibot/gompei/commands"
	"github.com/gompeibot/gompei/database"
	"github.com/gompeibot/gompei/event"
	"github.com/gompeibot/gompei/feed"
	"github.com/gompeibot/gompei/gateway"
	"github.com/gompeibot/gompei/reconcile"
)

type Bot struct {
	config       Config
	eventBus     *event.EventBus
	db           *database.Database
	gateway      *gateway.Gateway
	reconciler   *reconcile.Reconciler
	commands     *commands.Commands
	poller       *feed.Poller
	runCancel    context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(cfg Config) (*Bot, error) {
	b := &Bot{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	if err := b.config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return b, nil
}

// Run starts every component and blocks until Stop is called
func (b *Bot) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.runCancel = cancel

	// Load database
	db, err := database.New(&database.Config{
		Logger:  b.config.logger,
		DataDir: b.config.dataDir,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	b.db = db

	// Configure gateway
	gw, err := gateway.NewGateway(gateway.GatewayConfig{
		Logger:   b.config.logger,
		EventBus: b.eventBus,
		Token:    b.config.token,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	b.gateway = gw

	// Configure reconciler
	b.reconciler = reconcile.NewReconciler(reconcile.ReconcilerConfig{
		Logger:       b.config.logger,
		EventBus:     b.eventBus,
		Database:     b.db,
		Gateway:      b.gateway,
		PromRegistry: b.config.promRegistry,
	})
	if err := b.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	// Configure command surface
	b.commands = commands.NewCommands(commands.CommandsConfig{
		Logger:    b.config.logger,
		EventBus:  b.eventBus,
		Database:  b.db,
		Session:   b.gateway.Session(),
		Sweeper:   b.reconciler,
		VerifyURL: b.config.verifyURL,
	})
	if err := b.commands.Start(ctx); err != nil {
		return fmt.Errorf("failed to start command surface: %w", err)
	}

	// Configure feed poller
	b.poller = feed.NewPoller(feed.PollerConfig{
		Logger:       b.config.logger,
		EventBus:     b.eventBus,
		PromRegistry: b.config.promRegistry,
		Recorder:     b.db,
		Path:         b.config.feedPath,
		Interval:     b.config.pollInterval,
	})
	if err := b.poller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start feed poller: %w", err)
	}

	// Connect last so subscribers are in place before the first gateway
	// events arrive
	if err := b.gateway.Start(); err != nil {
		return fmt.Errorf("failed to connect gateway: %w", err)
	}

	// Wait for shutdown signal
	<-b.done
	return nil
}

func (b *Bot) Stop() error {
	var err error
	b.shutdownOnce.Do(func() {
		err = b.shutdown()
	})
	return err
}

func (b *Bot) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if b.config.shutdownTimeout > 0 {
		shutdownTimeout = b.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	b.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	b.config.logger.Debug("shutdown phase 1: stopping new work")

	if b.poller != nil {
		b.poller.Stop()
	}
	if b.commands != nil {
		b.commands.Stop()
	}
	if b.gateway != nil {
		// Closing the session can block on the websocket, so bound it by
		// the shutdown timeout
		stopped := make(chan error, 1)
		go func() {
			stopped <- b.gateway.Stop()
		}()
		select {
		case stopErr := <-stopped:
			if stopErr != nil {
				err = errors.Join(
					err,
					fmt.Errorf("gateway shutdown: %w", stopErr),
				)
			}
		case <-ctx.Done():
			err = errors.Join(err, fmt.Errorf("gateway shutdown: %w", ctx.Err()))
		}
	}

	// Phase 2: Drain in-flight reconciliations
	b.config.logger.Debug("shutdown phase 2: draining reconciliations")

	if b.runCancel != nil {
		b.runCancel()
	}
	if b.reconciler != nil {
		b.reconciler.Stop()
	}

	// Phase 3: Cleanup resources
	b.config.logger.Debug("shutdown phase 3: cleanup resources")

	if b.eventBus != nil {
		b.eventBus.Stop()
	}
	if b.db != nil {
		if closeErr := b.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	b.config.logger.Debug("graceful shutdown complete")
	close(b.done)
	return err
}
