package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/groupchat-api/internal/models"
)

// ErrMessageNotFound is returned when a message does not exist in the conversation.
var ErrMessageNotFound = errors.New("message not found")

// MessageFilter controls message listing.
type MessageFilter struct {
	Before     *time.Time
	Limit      int
	Descending bool
}

// MessageRepository persists conversation messages. Set operations on
// starredBy and readBy read the row under FOR UPDATE inside a transaction, so
// concurrent viewers serialise on the message instead of overwriting each other.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, conversation, id string) (models.Message, error)
	List(ctx context.Context, conversation string, filter MessageFilter) ([]models.Message, error)
	SetStar(ctx context.Context, conversation, id, userID string, starred bool, at time.Time) (models.Message, error)
	SetPinned(ctx context.Context, conversation, id string, pinned bool) (models.Message, error)
	MarkRead(ctx context.Context, conversation, id, userID string) (models.Message, error)
	Delete(ctx context.Context, conversation, id string) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a gorm backed message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, conversation, id string) (models.Message, error) {
	return findMessage(r.db.WithContext(ctx), conversation, id)
}

func (r *messageRepository) List(ctx context.Context, conversation string, filter MessageFilter) ([]models.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation = ?", conversation)
	if filter.Before != nil && !filter.Before.IsZero() {
		query = query.Where("created_at < ?", *filter.Before)
	}
	if filter.Descending {
		query = query.Order("created_at DESC").Order("id DESC")
	} else {
		query = query.Order("created_at ASC").Order("id ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var messages []models.Message
	err := query.Find(&messages).Error
	return messages, err
}

func (r *messageRepository) SetStar(ctx context.Context, conversation, id, userID string, starred bool, at time.Time) (models.Message, error) {
	var updated models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err := lockedMessage(tx, conversation, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if starred {
			message.StarredBy = union(message.StarredBy, userID)
			message.StarredAt = &at
			updates["starred_at"] = at
		} else {
			message.StarredBy = without(message.StarredBy, userID)
		}
		updates["starred_by"] = message.StarredBy

		if err := tx.Model(&message).Updates(updates).Error; err != nil {
			return err
		}
		updated = message
		return nil
	})
	return updated, err
}

func (r *messageRepository) SetPinned(ctx context.Context, conversation, id string, pinned bool) (models.Message, error) {
	var updated models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err := lockedMessage(tx, conversation, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&message).Update("is_pinned", pinned).Error; err != nil {
			return err
		}
		message.IsPinned = pinned
		updated = message
		return nil
	})
	return updated, err
}

func (r *messageRepository) MarkRead(ctx context.Context, conversation, id, userID string) (models.Message, error) {
	var updated models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err := lockedMessage(tx, conversation, id)
		if err != nil {
			return err
		}
		message.ReadBy = union(message.ReadBy, userID)
		message.IsRead = true
		if err := tx.Model(&message).Updates(map[string]interface{}{
			"read_by": message.ReadBy,
			"is_read": true,
		}).Error; err != nil {
			return err
		}
		updated = message
		return nil
	})
	return updated, err
}

func (r *messageRepository) Delete(ctx context.Context, conversation, id string) error {
	result := r.db.WithContext(ctx).Where("conversation = ? AND id = ?", conversation, id).Delete(&models.Message{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func findMessage(db *gorm.DB, conversation, id string) (models.Message, error) {
	var message models.Message
	err := db.First(&message, "conversation = ? AND id = ?", conversation, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	return message, err
}

// lockedMessage reads a message for a read-modify-write. Dialects without row
// locks (sqlite) drop the clause and rely on their single writer.
func lockedMessage(tx *gorm.DB, conversation, id string) (models.Message, error) {
	return findMessage(tx.Clauses(clause.Locking{Strength: "UPDATE"}), conversation, id)
}

func union(set []string, value string) []string {
	for _, item := range set {
		if item == value {
			return set
		}
	}
	return append(append([]string(nil), set...), value)
}
