package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
)

// Publisher is the single write path for SystemEvents: it inserts the
// immutable audit row inside a transaction and, only after that transaction
// commits, publishes the event to the bus. A publish failure never rolls
// back or fails the write — the row is the source of truth, the pub/sub
// fan-out is best-effort notification on top of it.
type Publisher struct {
	gormDB *gorm.DB
	bus    *Bus
}

// NewPublisher creates a Publisher bound to the primary *gorm.DB and a Bus.
func NewPublisher(gormDB *gorm.DB, bus *Bus) *Publisher {
	return &Publisher{gormDB: gormDB, bus: bus}
}

// Publish inserts a SystemEvent row and publishes it to the org (and, when
// boardID is non-nil, board) event channel. payload is JSON-marshaled into
// the row's Payload column and the published frame alike.
func (p *Publisher) Publish(
	ctx context.Context,
	eventType string,
	organizationID uuid.UUID,
	boardID, agentID, taskID *uuid.UUID,
	payload any,
) (*db.SystemEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: marshal event payload: %w", err)
	}

	row := &db.SystemEvent{
		OrganizationID: organizationID,
		BoardID:        boardID,
		AgentID:        agentID,
		TaskID:         taskID,
		EventType:      eventType,
		Payload:        string(payloadJSON),
	}

	err = p.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repositories.NewSystemEventRepository(tx)
		return repo.Create(ctx, row)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: insert system event: %w", err)
	}

	p.bus.PublishEvent(ctx, SystemEvent{
		EventID:        row.ID,
		EventType:      row.EventType,
		OrganizationID: row.OrganizationID,
		BoardID:        row.BoardID,
		AgentID:        row.AgentID,
		TaskID:         row.TaskID,
		Payload:        json.RawMessage(payloadJSON),
		Timestamp:      row.CreatedAt,
	})

	return row, nil
}
