package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/auth"
	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/eventbus"
	"github.com/relaycore/core/internal/repository"
	"github.com/relaycore/core/internal/wsrelay"
)

// Handler serves /ws/board/{board_id}/sync.
type Handler struct {
	boards      repository.BoardRepository
	tasks       repository.TaskRepository
	authSvc     *auth.AuthService
	bus         *eventbus.Bus
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// New creates a board-sync Handler.
func New(
	boards repository.BoardRepository,
	tasks repository.TaskRepository,
	authSvc *auth.AuthService,
	bus *eventbus.Bus,
	broadcaster *Broadcaster,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		boards:      boards,
		tasks:       tasks,
		authSvc:     authSvc,
		bus:         bus,
		broadcaster: broadcaster,
		logger:      logger.Named("boardsync.handler"),
	}
}

// ServeHTTP upgrades the connection, performs the handshake, verifies the
// board exists, replays a snapshot, then bridges Redis fan-out and inbound
// mutations for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	boardID, err := uuid.Parse(chi.URLParam(r, "board_id"))
	if err != nil {
		http.Error(w, "invalid board id", http.StatusBadRequest)
		return
	}

	wsConn, err := wsrelay.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := wsrelay.NewConn(boardID.String(), wsConn, h.logger)

	operatorID, _, ok := wsrelay.Handshake(c, func(payload wsrelay.AuthPayload) (string, string, error) {
		claims, err := h.authSvc.ValidateAccessToken(payload.Token)
		if err != nil {
			return "", "", errors.New("invalid or expired token")
		}
		return claims.UserID, "", nil
	})
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	board, err := h.boards.GetByID(ctx, boardID)
	if err != nil {
		c.CloseWithCode(wsrelay.CloseNotFound, "board not found")
		return
	}

	taskRows, err := h.tasks.ListByBoard(ctx, board.ID)
	if err != nil {
		h.logger.Error("listing tasks for snapshot failed", zap.Error(err))
		c.CloseWithCode(wsrelay.CloseNormal, "internal error")
		return
	}

	views := make([]taskView, 0, len(taskRows))
	for _, t := range taskRows {
		views = append(views, toTaskView(t))
	}
	c.SendEnvelope(wsrelay.TypeBoardState, "", boardStatePayload{Tasks: views})

	go h.forwardBoardSync(ctx, boardID, c)

	h.logger.Info("operator connected", zap.String("operator_id", operatorID), zap.String("board_id", boardID.String()))

	c.Run(ctx, func(ctx context.Context, c *wsrelay.Conn, msg wsrelay.Envelope) {
		switch msg.Type {
		case wsrelay.TypeTaskMove:
			go h.handleTaskMove(ctx, boardID, operatorID, msg)
		case wsrelay.TypeTaskCreate:
			go h.handleTaskCreate(ctx, boardID, msg)
		default:
			h.logger.Debug("unknown message type", zap.String("type", msg.Type))
		}
	})
}

// forwardBoardSync subscribes to the board's Redis channel and forwards
// every published frame to the client verbatim until ctx is cancelled.
func (h *Handler) forwardBoardSync(ctx context.Context, boardID uuid.UUID, c *wsrelay.Conn) {
	channel := eventbus.BoardSyncChannel(boardID)
	if err := h.bus.SubscribeChannel(ctx, channel, func(raw []byte) {
		c.Send(raw)
	}); err != nil && ctx.Err() == nil {
		h.logger.Warn("board_sync subscription ended", zap.Error(err), zap.String("channel", channel))
	}
}

type taskMovePayload struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (h *Handler) handleTaskMove(ctx context.Context, boardID uuid.UUID, actor string, msg wsrelay.Envelope) {
	var p taskMovePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.logger.Debug("invalid task.move payload", zap.Error(err))
		return
	}
	taskID, err := uuid.Parse(p.TaskID)
	if err != nil {
		h.logger.Debug("invalid task.move task_id", zap.String("task_id", p.TaskID))
		return
	}

	task, err := h.tasks.GetByID(ctx, taskID)
	if err != nil {
		h.logger.Warn("task.move: task not found", zap.String("task_id", p.TaskID))
		return
	}
	if task.BoardID != boardID {
		h.logger.Warn("task.move: task not on this board", zap.String("task_id", p.TaskID))
		return
	}

	task.Status = p.Status
	if err := h.tasks.Update(ctx, task); err != nil {
		h.logger.Error("task.move: update failed", zap.Error(err))
		return
	}

	h.broadcaster.BroadcastTaskUpdated(ctx, boardID, taskID, map[string]any{"status": p.Status}, actor)
}

type taskCreatePayload struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	AgentID     *string `json:"agent_id,omitempty"`
}

func (h *Handler) handleTaskCreate(ctx context.Context, boardID uuid.UUID, msg wsrelay.Envelope) {
	var p taskCreatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.logger.Debug("invalid task.create payload", zap.Error(err))
		return
	}
	if p.Title == "" {
		h.logger.Debug("task.create: missing title")
		return
	}

	board, err := h.boards.GetByID(ctx, boardID)
	if err != nil {
		return
	}

	task := &db.Task{
		OrganizationID: board.OrganizationID,
		BoardID:        boardID,
		Title:          p.Title,
		Description:    p.Description,
		Status:         "pending",
	}
	if p.AgentID != nil {
		if agentID, err := uuid.Parse(*p.AgentID); err == nil {
			task.AgentID = &agentID
		}
	}

	if err := h.tasks.Create(ctx, task); err != nil {
		h.logger.Error("task.create: insert failed", zap.Error(err))
		return
	}

	h.broadcaster.BroadcastTaskCreated(ctx, boardID, *task)
}
