package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormChatSessionRepository is the GORM implementation of ChatSessionRepository.
type gormChatSessionRepository struct {
	db *gorm.DB
}

// NewChatSessionRepository returns a ChatSessionRepository backed by the
// provided *gorm.DB.
func NewChatSessionRepository(db *gorm.DB) ChatSessionRepository {
	return &gormChatSessionRepository{db: db}
}

func (r *gormChatSessionRepository) Create(ctx context.Context, s *db.ChatSession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("chat_sessions: create: %w", err)
	}
	return nil
}

func (r *gormChatSessionRepository) GetBySessionKey(ctx context.Context, key string) (*db.ChatSession, error) {
	var s db.ChatSession
	err := r.db.WithContext(ctx).First(&s, "session_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chat_sessions: get by session key: %w", err)
	}
	return &s, nil
}

// GetOrCreate materializes a ChatSession on the first message between a user
// and an agent. The unique index on session_key makes a concurrent create
// race safe: the loser's insert fails, and a second read returns the
// winner's row.
func (r *gormChatSessionRepository) GetOrCreate(ctx context.Context, orgID, endUserID, agentID, gatewayID uuid.UUID, sessionKey string) (*db.ChatSession, error) {
	existing, err := r.GetBySessionKey(ctx, sessionKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	s := &db.ChatSession{
		OrganizationID: orgID,
		SessionKey:     sessionKey,
		EndUserID:      endUserID,
		AgentID:        agentID,
		GatewayID:      gatewayID,
		Status:         "active",
		LastMessageAt:  time.Now(),
	}
	if createErr := r.db.WithContext(ctx).Create(s).Error; createErr != nil {
		// Lost the create race; the winner's row is now readable.
		if existing, getErr := r.GetBySessionKey(ctx, sessionKey); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("chat_sessions: get or create: %w", createErr)
	}
	return s, nil
}

func (r *gormChatSessionRepository) TouchLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.ChatSession{}).
		Where("id = ?", id).
		Update("last_message_at", at)
	if result.Error != nil {
		return fmt.Errorf("chat_sessions: touch last message at: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormChatSessionRepository) Close(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&db.ChatSession{}).
		Where("id = ?", id).
		Update("status", "closed")
	if result.Error != nil {
		return fmt.Errorf("chat_sessions: close: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
