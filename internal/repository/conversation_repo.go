package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/models"
)

// ErrConversationNotFound is returned when no metadata exists for a conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// LastMessage is the preview written to conversation metadata on every send.
type LastMessage struct {
	Text       string
	Kind       string
	SenderID   string
	SenderName string
	At         time.Time
}

// ConversationRepository persists conversation metadata. Every write is an
// upsert, so the first message of a fresh inner-group chat creates its record.
type ConversationRepository interface {
	Get(ctx context.Context, loc conversation.Location) (models.ConversationMeta, error)
	ListByGroups(ctx context.Context, groupIDs []string) ([]models.ConversationMeta, error)
	Ensure(ctx context.Context, loc conversation.Location) error
	RecordMessage(ctx context.Context, loc conversation.Location, last LastMessage) (models.ConversationMeta, error)
	SetPinned(ctx context.Context, loc conversation.Location, messageID *string) (models.ConversationMeta, error)
	ClearPinnedIf(ctx context.Context, loc conversation.Location, messageID string) (bool, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a gorm backed conversation repository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Get(ctx context.Context, loc conversation.Location) (models.ConversationMeta, error) {
	var meta models.ConversationMeta
	err := r.db.WithContext(ctx).First(&meta, "path = ?", loc.MetadataPath).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ConversationMeta{}, ErrConversationNotFound
	}
	return meta, err
}

// ListByGroups returns the metadata of every conversation owned by the groups,
// group chats and inner-group chats alike.
func (r *conversationRepository) ListByGroups(ctx context.Context, groupIDs []string) ([]models.ConversationMeta, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var metas []models.ConversationMeta
	err := r.db.WithContext(ctx).Where("group_id IN ?", groupIDs).Order("updated_at DESC").Find(&metas).Error
	return metas, err
}

func (r *conversationRepository) Ensure(ctx context.Context, loc conversation.Location) error {
	meta := newMeta(loc)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).
		Create(&meta).Error
}

func (r *conversationRepository) RecordMessage(ctx context.Context, loc conversation.Location, last LastMessage) (models.ConversationMeta, error) {
	var saved models.ConversationMeta
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := loadOrNew(tx, loc)
		if err != nil {
			return err
		}

		at := last.At
		meta.LastMessageText = last.Text
		meta.LastMessageKind = last.Kind
		meta.LastSenderID = last.SenderID
		meta.LastMessageAt = &at
		if meta.Participants == nil {
			meta.Participants = datatypes.JSONMap{}
		}
		if last.SenderID != "" {
			name := last.SenderName
			if name == "" {
				if existing, ok := meta.Participants[last.SenderID].(string); ok {
					name = existing
				}
			}
			meta.Participants[last.SenderID] = name
		}
		meta.UpdatedAt = time.Now().UTC()

		if err := upsertMeta(tx, &meta, "last_message_text", "last_message_kind", "last_sender_id", "last_message_at", "participants", "updated_at"); err != nil {
			return err
		}
		saved = meta
		return nil
	})
	return saved, err
}

func (r *conversationRepository) SetPinned(ctx context.Context, loc conversation.Location, messageID *string) (models.ConversationMeta, error) {
	var saved models.ConversationMeta
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := loadOrNew(tx, loc)
		if err != nil {
			return err
		}
		meta.PinnedMessageID = messageID
		meta.UpdatedAt = time.Now().UTC()
		if err := upsertMeta(tx, &meta, "pinned_message_id", "updated_at"); err != nil {
			return err
		}
		saved = meta
		return nil
	})
	return saved, err
}

func (r *conversationRepository) ClearPinnedIf(ctx context.Context, loc conversation.Location, messageID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ConversationMeta{}).
		Where("path = ? AND pinned_message_id = ?", loc.MetadataPath, messageID).
		Updates(map[string]interface{}{"pinned_message_id": nil, "updated_at": time.Now().UTC()})
	return result.RowsAffected > 0, result.Error
}

func loadOrNew(tx *gorm.DB, loc conversation.Location) (models.ConversationMeta, error) {
	var meta models.ConversationMeta
	err := tx.First(&meta, "path = ?", loc.MetadataPath).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newMeta(loc), nil
	}
	return meta, err
}

func upsertMeta(tx *gorm.DB, meta *models.ConversationMeta, columns ...string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(meta).Error
}

func newMeta(loc conversation.Location) models.ConversationMeta {
	return models.ConversationMeta{
		Path:         loc.MetadataPath,
		Scope:        string(loc.Scope),
		GroupID:      loc.GroupID,
		InnerGroupID: loc.InnerGroupID,
		Participants: datatypes.JSONMap{},
		UpdatedAt:    time.Now().UTC(),
	}
}
