// Package boardsync implements the Board Real-Time Sync component:
// operators connect to /ws/board/{board_id}/sync, receive a full task
// snapshot, and then stream every subsequent board mutation over the
// board_sync:{board_id} pub/sub channel. Grounded on
// original_source/backend/app/api/ws_gateway.py's handshake shape and
// original_source's board_memory/tasks broadcast pattern, adapted to the
// Go wsrelay connection primitives and the Redis event bus.
package boardsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/eventbus"
	"github.com/relaycore/core/internal/wsrelay"
)

// taskView is the self-describing task dict every board.state / task.*
// frame carries.
type taskView struct {
	ID          string  `json:"id"`
	BoardID     string  `json:"board_id"`
	AgentID     *string `json:"agent_id,omitempty"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toTaskView(t db.Task) taskView {
	var agentID *string
	if t.AgentID != nil {
		s := t.AgentID.String()
		agentID = &s
	}
	return taskView{
		ID:          t.ID.String(),
		BoardID:     t.BoardID.String(),
		AgentID:     agentID,
		Title:       t.Title,
		Status:      t.Status,
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type boardStatePayload struct {
	Tasks []taskView `json:"tasks"`
}

type taskUpdatedPayload struct {
	TaskID  string         `json:"task_id"`
	Changes map[string]any `json:"changes"`
	Actor   string         `json:"actor,omitempty"`
}

type taskDeletedPayload struct {
	TaskID string `json:"task_id"`
}

type suggestionPayload struct {
	Suggestion any `json:"suggestion"`
}

// Broadcaster publishes idempotent board-mutation notices to
// board_sync:{board_id}. Every connected sync client — on this instance or
// any other — receives the frame by virtue of subscribing to the same Redis
// channel; publish failures are logged and never propagated, since a missed
// live update is resolved by the client's next reconnect snapshot.
type Broadcaster struct {
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster bound to the shared event bus.
func NewBroadcaster(bus *eventbus.Bus, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{bus: bus, logger: logger.Named("boardsync.broadcaster")}
}

func (b *Broadcaster) publish(ctx context.Context, boardID uuid.UUID, msgType string, payload any) {
	raw, err := wsrelay.Encode(msgType, "", payload)
	if err != nil {
		b.logger.Warn("encode broadcast failed", zap.Error(err), zap.String("type", msgType))
		return
	}
	b.bus.PublishRaw(ctx, eventbus.BoardSyncChannel(boardID), raw)
}

// BroadcastTaskCreated notifies board-sync subscribers that a task was created.
func (b *Broadcaster) BroadcastTaskCreated(ctx context.Context, boardID uuid.UUID, task db.Task) {
	b.publish(ctx, boardID, wsrelay.TypeTaskCreated, toTaskView(task))
}

// BroadcastTaskUpdated notifies board-sync subscribers that a task changed.
func (b *Broadcaster) BroadcastTaskUpdated(ctx context.Context, boardID, taskID uuid.UUID, changes map[string]any, actor string) {
	b.publish(ctx, boardID, wsrelay.TypeTaskUpdated, taskUpdatedPayload{
		TaskID:  taskID.String(),
		Changes: changes,
		Actor:   actor,
	})
}

// BroadcastTaskDeleted notifies board-sync subscribers that a task was removed.
func (b *Broadcaster) BroadcastTaskDeleted(ctx context.Context, boardID, taskID uuid.UUID) {
	b.publish(ctx, boardID, wsrelay.TypeTaskDeleted, taskDeletedPayload{TaskID: taskID.String()})
}

// BroadcastSuggestion notifies board-sync subscribers of a new suggestion
// scoped to this board.
func (b *Broadcaster) BroadcastSuggestion(ctx context.Context, boardID uuid.UUID, suggestion any) {
	b.publish(ctx, boardID, wsrelay.TypeSuggestion, suggestionPayload{Suggestion: suggestion})
}
