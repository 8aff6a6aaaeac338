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

// Package reconcile keeps each member's verified role in line with their
// verification status and the guild's required-role configuration. The
// decision logic lives in Evaluate; the Reconciler drives it from gateway
// and feed events and applies the resulting role mutations.
package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/gompeibot/gompei/database"
	"github.com/gompeibot/gompei/event"
	"github.com/gompeibot/gompei/feed"
	"github.com/gompeibot/gompei/gateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultSweepPageSize = 1000
	defaultSweepWorkers  = 4
)

// RoleGateway is the slice of the platform gateway the reconciler needs:
// applying role deltas and reading member role snapshots
type RoleGateway interface {
	AddMemberRole(guildId, memberId, roleId uint64) error
	RemoveMemberRole(guildId, memberId, roleId uint64) error
	Member(guildId, memberId uint64) (*gateway.Member, error)
	Members(guildId uint64, afterId uint64, limit int) ([]gateway.Member, error)
}

type ReconcilerConfig struct {
	PromRegistry  prometheus.Registerer
	Logger        *slog.Logger
	EventBus      *event.EventBus
	Database      *database.Database
	Gateway       RoleGateway
	SweepPageSize int
	SweepWorkers  int
}

type Reconciler struct {
	config  ReconcilerConfig
	logger  *slog.Logger
	metrics struct {
		decisions        *prometheus.CounterVec
		mutationFailures prometheus.Counter
		sweeps           prometheus.Counter
	}
	memberLocks *keyedMutex
	ctx         context.Context
	subIds      map[event.EventType]event.EventSubscriberId
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.SweepPageSize == 0 {
		cfg.SweepPageSize = defaultSweepPageSize
	}
	if cfg.SweepWorkers == 0 {
		cfg.SweepWorkers = defaultSweepWorkers
	}
	r := &Reconciler{
		config:      cfg,
		logger:      cfg.Logger,
		memberLocks: newKeyedMutex(),
		subIds:      make(map[event.EventType]event.EventSubscriberId),
	}
	promRegistry := cfg.PromRegistry
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
	}
	r.metrics.decisions = promauto.With(promRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gompei_reconcile_decisions_total",
			Help: "total reconcile decisions by outcome",
		},
		[]string{"decision"},
	)
	r.metrics.mutationFailures = promauto.With(promRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "gompei_reconcile_mutation_failures_total",
			Help: "total role mutations rejected by the gateway",
		},
	)
	r.metrics.sweeps = promauto.With(promRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "gompei_reconcile_sweeps_total",
			Help: "total bulk guild sweeps",
		},
	)
	return r
}

// Start subscribes the reconciler to gateway and feed events. The context
// bounds sweeps triggered by those events.
func (r *Reconciler) Start(ctx context.Context) error {
	r.ctx = ctx
	subs := map[event.EventType]event.EventHandlerFunc{
		gateway.ReadyEventType:        r.handleReady,
		gateway.GuildJoinEventType:    r.handleGuildJoin,
		gateway.MemberJoinEventType:   r.handleMemberJoin,
		gateway.MemberUpdateEventType: r.handleMemberUpdate,
		feed.VerifiedEventType:        r.handleVerified,
	}
	for eventType, handler := range subs {
		r.subIds[eventType] = r.config.EventBus.SubscribeFunc(
			eventType,
			handler,
		)
	}
	return nil
}

// Stop unsubscribes from the event bus
func (r *Reconciler) Stop() {
	for eventType, subId := range r.subIds {
		r.config.EventBus.Unsubscribe(eventType, subId)
		delete(r.subIds, eventType)
	}
}

// handleReady bootstraps config rows for every guild the session reports
// and runs an initial sweep per guild to heal drift accumulated while the
// bot was offline
func (r *Reconciler) handleReady(evt event.Event) {
	data, ok := evt.Data.(gateway.ReadyEvent)
	if !ok {
		r.logger.Error(
			"unexpected event payload",
			"component", "reconcile",
			"type", evt.Type,
		)
		return
	}
	for _, guildId := range data.GuildIds {
		if _, err := r.config.Database.EnsureGuildConfig(guildId); err != nil {
			r.logger.Error(
				"failed to bootstrap guild config",
				"component", "reconcile",
				"guild", guildId,
				"error", err,
			)
			continue
		}
		if err := r.SweepGuild(r.ctx, guildId); err != nil {
			r.logger.Warn(
				"startup sweep failed",
				"component", "reconcile",
				"guild", guildId,
				"error", err,
			)
		}
	}
}

func (r *Reconciler) handleGuildJoin(evt event.Event) {
	data, ok := evt.Data.(gateway.GuildJoinEvent)
	if !ok {
		r.logger.Error(
			"unexpected event payload",
			"component", "reconcile",
			"type", evt.Type,
		)
		return
	}
	if _, err := r.config.Database.EnsureGuildConfig(data.GuildId); err != nil {
		r.logger.Error(
			"failed to bootstrap guild config",
			"component", "reconcile",
			"guild", data.GuildId,
			"error", err,
		)
	}
}

func (r *Reconciler) handleMemberJoin(evt event.Event) {
	data, ok := evt.Data.(gateway.MemberJoinEvent)
	if !ok {
		r.logger.Error(
			"unexpected event payload",
			"component", "reconcile",
			"type", evt.Type,
		)
		return
	}
	r.ReconcileMember(data.GuildId, data.MemberId, data.Roles)
}

func (r *Reconciler) handleMemberUpdate(evt event.Event) {
	data, ok := evt.Data.(gateway.MemberUpdateEvent)
	if !ok {
		r.logger.Error(
			"unexpected event payload",
			"component", "reconcile",
			"type", evt.Type,
		)
		return
	}
	// Reconcile against the post-change role set. Our own role mutations
	// echo back as further member updates, but the post-mutation state
	// always evaluates to DecisionNone so there is no feedback loop.
	r.ReconcileMember(data.GuildId, data.MemberId, data.Roles)
}

// handleVerified reconciles a freshly verified member in every guild the
// bot knows, so a new verification takes effect without waiting for the
// member's next role event
func (r *Reconciler) handleVerified(evt event.Event) {
	data, ok := evt.Data.(feed.VerifiedEvent)
	if !ok {
		r.logger.Error(
			"unexpected event payload",
			"component", "reconcile",
			"type", evt.Type,
		)
		return
	}
	guildIds, err := r.config.Database.GuildIds()
	if err != nil {
		r.logger.Error(
			"failed to list guilds",
			"component", "reconcile",
			"error", err,
		)
		return
	}
	for _, guildId := range guildIds {
		member, err := r.config.Gateway.Member(guildId, data.DiscordId)
		if err != nil {
			if errors.Is(err, gateway.ErrMemberNotFound) {
				continue
			}
			r.logger.Warn(
				"failed to fetch member",
				"component", "reconcile",
				"guild", guildId,
				"member", data.DiscordId,
				"error", err,
			)
			continue
		}
		r.ReconcileMember(guildId, member.Id, member.Roles)
	}
}

// ReconcileMember runs the config-read, verification-read, evaluate, apply
// sequence for one member. The member's key lock makes the sequence
// uninterruptible by other reconciliations of the same member. Mutation
// failures are logged per member and never propagate.
func (r *Reconciler) ReconcileMember(
	guildId uint64,
	memberId uint64,
	currentRoles []uint64,
) Decision {
	unlock := r.memberLocks.Lock(memberKey{guildId: guildId, memberId: memberId})
	defer unlock()

	cfg, err := r.config.Database.GuildConfig(guildId)
	if err != nil {
		if !errors.Is(err, database.ErrGuildConfigNotFound) {
			r.logger.Error(
				"failed to read guild config",
				"component", "reconcile",
				"guild", guildId,
				"error", err,
			)
			return DecisionNone
		}
		// A guild that was never bootstrapped behaves as a default config
		cfg = nil
	}
	verified, err := r.config.Database.IsVerified(memberId)
	if err != nil {
		r.logger.Error(
			"failed to read verification status",
			"component", "reconcile",
			"member", memberId,
			"error", err,
		)
		return DecisionNone
	}

	decision := Evaluate(cfg, verified, currentRoles)
	r.metrics.decisions.WithLabelValues(decision.String()).Inc()
	if decision == DecisionNone {
		return decision
	}

	var applyErr error
	switch decision {
	case DecisionAddRole:
		applyErr = r.config.Gateway.AddMemberRole(
			guildId,
			memberId,
			*cfg.VerificationRole,
		)
	case DecisionRemoveRole:
		applyErr = r.config.Gateway.RemoveMemberRole(
			guildId,
			memberId,
			*cfg.VerificationRole,
		)
	}
	if applyErr != nil {
		r.metrics.mutationFailures.Inc()
		r.logger.Warn(
			"role mutation rejected",
			"component", "reconcile",
			"guild", guildId,
			"member", memberId,
			"decision", decision.String(),
			"error", applyErr,
		)
		return decision
	}
	r.logger.Debug(
		"applied role mutation",
		"component", "reconcile",
		"guild", guildId,
		"member", memberId,
		"decision", decision.String(),
	)
	return decision
}
