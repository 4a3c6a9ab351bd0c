package governor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/eventbus"
	"github.com/relaycore/core/internal/metrics"
	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/repository"
)

// defaultTickInterval and minTickInterval match the original implementation's
// governor_loop defaults (300s, floored at 30s).
const (
	defaultTickInterval = 300 * time.Second
	minTickInterval     = 30 * time.Second
)

// chatActivityEventTypes are the SystemEvent types counted as "chat
// activity" when computing a board's latest-chat timestamp — the same two
// types the message router publishes on every routed chat message.
var chatActivityEventTypes = []string{eventbus.EventChatSent, eventbus.EventChatReceived}

// heartbeatConfigPayload is the JSON shape persisted to Agent.HeartbeatConfig.
type heartbeatConfigPayload struct {
	Every string `json:"every,omitempty"`
}

// Governor is the singleton auto heartbeat control loop. Grounded on
// original_source/.../auto_heartbeat_governor.py's run_governor_once and
// governor_loop, restructured around gocron the way
// internal/scheduler schedules recurring work.
type Governor struct {
	cron     gocron.Scheduler
	gormDB   *gorm.DB
	agents   repositories.AgentRepository
	boards   repository.BoardRepository
	gateways repositories.GatewayRepository
	events   repositories.SystemEventRepository
	tasks    repository.TaskRepository
	client   *GatewayClient
	lock     locker
	logger   *zap.Logger
}

// New creates a Governor. Call Start to begin ticking.
func New(
	gormDB *gorm.DB,
	agents repositories.AgentRepository,
	boards repository.BoardRepository,
	gateways repositories.GatewayRepository,
	events repositories.SystemEventRepository,
	tasks repository.TaskRepository,
	logger *zap.Logger,
) (*Governor, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("governor: create scheduler: %w", err)
	}

	return &Governor{
		cron:     cron,
		gormDB:   gormDB,
		agents:   agents,
		boards:   boards,
		gateways: gateways,
		events:   events,
		tasks:    tasks,
		client:   NewGatewayClient(),
		lock:     newLocker(gormDB),
		logger:   logger.Named("governor"),
	}, nil
}

// Start schedules the recurring tick and starts the underlying gocron
// scheduler. The tick interval is the minimum of every governor-enabled
// board's configured run interval, floored at minTickInterval, defaulting
// to defaultTickInterval when no board overrides it.
func (g *Governor) Start(ctx context.Context) error {
	interval, err := g.resolveTickInterval(ctx)
	if err != nil {
		g.logger.Warn("resolving tick interval failed, using default", zap.Error(err))
		interval = defaultTickInterval
	}

	_, err = g.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			tickCtx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := g.Tick(tickCtx); err != nil {
				g.logger.Error("tick failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("governor: schedule tick job: %w", err)
	}

	g.logger.Info("starting", zap.Duration("interval", interval))
	g.cron.Start()
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for any in-flight tick
// to finish.
func (g *Governor) Stop() error {
	if err := g.cron.Shutdown(); err != nil {
		return fmt.Errorf("governor: shutdown: %w", err)
	}
	g.logger.Info("stopped")
	return nil
}

func (g *Governor) resolveTickInterval(ctx context.Context) (time.Duration, error) {
	boards, err := g.boards.ListGovernorEnabled(ctx)
	if err != nil {
		return 0, err
	}

	var interval time.Duration
	for _, b := range boards {
		if b.AutoHeartbeatGovernorRunIntervalSeconds <= 0 {
			continue
		}
		candidate := time.Duration(b.AutoHeartbeatGovernorRunIntervalSeconds) * time.Second
		if interval == 0 || candidate < interval {
			interval = candidate
		}
	}
	if interval == 0 {
		interval = defaultTickInterval
	}
	if interval < minTickInterval {
		interval = minTickInterval
	}
	return interval, nil
}

// Tick runs one full pass of the 8-step algorithm. Exported so it can be
// triggered manually (tests, an operator "run now" endpoint) outside the
// scheduled cadence.
func (g *Governor) Tick(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		metrics.GovernorTickDuration.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.GovernorTicks.WithLabelValues(outcome).Inc()
	}()

	acquired, err := g.lock.tryLock(ctx, tickLockKey)
	if err != nil {
		return fmt.Errorf("governor: acquire lock: %w", err)
	}
	if !acquired {
		g.logger.Debug("tick skipped, lock held by another instance")
		return nil
	}
	defer func() {
		if err := g.lock.unlock(ctx, tickLockKey); err != nil {
			g.logger.Warn("releasing lock failed", zap.Error(err))
		}
	}()

	boards, err := g.boards.ListGovernorEnabled(ctx)
	if err != nil {
		return fmt.Errorf("governor: snapshot boards: %w", err)
	}
	boardsByID := make(map[uuid.UUID]db.Board, len(boards))
	for _, b := range boards {
		boardsByID[b.ID] = b
	}

	agents, err := g.agents.ListGovernable(ctx)
	if err != nil {
		return fmt.Errorf("governor: snapshot agents: %w", err)
	}

	latestChatByBoard, err := g.events.LatestEventTimeByBoard(ctx, chatActivityEventTypes)
	if err != nil {
		return fmt.Errorf("governor: snapshot latest chat: %w", err)
	}

	hasWorkByAgent, err := g.tasks.ListAgentIDsWithActiveWork(ctx)
	if err != nil {
		return fmt.Errorf("governor: snapshot active work: %w", err)
	}

	now := time.Now()
	patchesByGateway := make(map[uuid.UUID][]agentPatch)
	changed := 0

	for _, agent := range agents {
		var (
			activeEvery, leadCapEvery, triggerType string
			ladder                                 []string
			lastActivity                           *time.Time
		)

		if agent.BoardID == nil {
			// No board to inherit policy from: run with package defaults and
			// the "chat-or-work" trigger, same as the original's resolution
			// of an unassigned agent.
			activeEvery, ladder, leadCapEvery = resolvePolicy(DefaultActiveEvery, nil, "")
			triggerType = TriggerChatOrWork
		} else {
			board, ok := boardsByID[*agent.BoardID]
			if !ok {
				continue
			}
			activeEvery, ladder, leadCapEvery = resolvePolicy(DefaultActiveEvery, decodeLadder(board.AutoHeartbeatGovernorLadder), board.AutoHeartbeatGovernorLeadCapEvery)
			triggerType = board.AutoHeartbeatGovernorActivityTrigger
			if t, ok := latestChatByBoard[board.ID]; ok {
				lastActivity = &t
			}
		}

		active := isActive(now, lastActivity, hasWorkByAgent[agent.ID], triggerType)
		desired := computeDesiredHeartbeat(agent.IsBoardLead, active, agent.AutoHeartbeatStep, activeEvery, ladder, leadCapEvery)

		current := decodeHeartbeatConfig(agent.HeartbeatConfig)
		if desired.Every == current.Every && desired.Off == agent.AutoHeartbeatOff {
			continue
		}

		var lastActiveAt *time.Time
		if active {
			lastActiveAt = &now
		} else {
			lastActiveAt = agent.AutoHeartbeatLastActiveAt
		}

		newConfig := ""
		if !desired.Off {
			encoded, err := json.Marshal(heartbeatConfigPayload{Every: desired.Every})
			if err != nil {
				g.logger.Warn("encoding heartbeat config failed", zap.Error(err), zap.String("agent_id", agent.ID.String()))
				continue
			}
			newConfig = string(encoded)
		}

		if err := g.agents.UpdateHeartbeatState(ctx, agent.ID, desired.Step, desired.Off, lastActiveAt, newConfig); err != nil {
			g.logger.Error("persisting heartbeat state failed", zap.Error(err), zap.String("agent_id", agent.ID.String()))
			continue
		}
		changed++

		var everyPtr *string
		if !desired.Off {
			e := desired.Every
			everyPtr = &e
		}
		patchesByGateway[agent.GatewayID] = append(patchesByGateway[agent.GatewayID], agentPatch{
			WorkspacePath: agent.WorkspacePath,
			AgentID:       agent.ID.String(),
			Every:         everyPtr,
		})
	}

	g.logger.Info("tick complete", zap.Int("agents_scanned", len(agents)), zap.Int("agents_changed", changed), zap.Int("gateways_to_patch", len(patchesByGateway)))

	dispatchAcquired, lockErr := g.lock.tryLock(ctx, patchLockKey)
	if lockErr != nil {
		g.logger.Warn("acquiring patch dispatch lock failed", zap.Error(lockErr))
	} else if !dispatchAcquired {
		g.logger.Debug("patch dispatch skipped, lock held by another instance")
	} else {
		defer func() {
			if err := g.lock.unlock(ctx, patchLockKey); err != nil {
				g.logger.Warn("releasing patch dispatch lock failed", zap.Error(err))
			}
		}()
		g.dispatchPatches(ctx, patchesByGateway)
	}
	return nil
}

// dispatchPatches POSTs each gateway's batched patch set, guarded by
// patchLockKey so only one instance pushes patches for a given tick.
// Failures are logged and never retried in-tick per spec.md §4.7 step 7.
func (g *Governor) dispatchPatches(ctx context.Context, patchesByGateway map[uuid.UUID][]agentPatch) {
	for gatewayID, patches := range patchesByGateway {
		gw, err := g.gateways.GetByID(ctx, gatewayID)
		if err != nil {
			g.logger.Warn("loading gateway for patch dispatch failed", zap.Error(err), zap.String("gateway_id", gatewayID.String()))
			continue
		}
		if gw.URL == "" {
			g.logger.Warn("gateway has no control-plane URL, skipping patch", zap.String("gateway_id", gatewayID.String()))
			continue
		}
		if err := g.client.PatchHeartbeats(ctx, gw.URL, patches); err != nil {
			g.logger.Warn("dispatching heartbeat patch failed", zap.Error(err), zap.String("gateway_id", gatewayID.String()))
			metrics.GovernorPatchesDispatched.WithLabelValues("error").Inc()
			continue
		}
		metrics.GovernorPatchesDispatched.WithLabelValues("ok").Inc()
	}
}

func decodeLadder(raw string) []string {
	if raw == "" {
		return nil
	}
	var ladder []string
	if err := json.Unmarshal([]byte(raw), &ladder); err != nil {
		return nil
	}
	return ladder
}

func decodeHeartbeatConfig(raw string) heartbeatConfigPayload {
	var cfg heartbeatConfigPayload
	if raw == "" {
		return cfg
	}
	_ = json.Unmarshal([]byte(raw), &cfg)
	return cfg
}
