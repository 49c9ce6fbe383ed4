package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/models"
)

const (
	mongoMessagesCollection      = "messages"
	mongoConversationsCollection = "conversations"
	mongoOpTimeout               = 5 * time.Second
)

type mongoMessageRepository struct {
	messages *mongo.Collection
}

type mongoConversationRepository struct {
	conversations *mongo.Collection
}

// NewMongoMessageRepository stores messages in the messages collection of db.
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{messages: db.Collection(mongoMessagesCollection)}
}

// NewMongoConversationRepository stores conversation metadata in db, keyed by metadata path.
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	return &mongoConversationRepository{conversations: db.Collection(mongoConversationsCollection)}
}

// EnsureMongoIndexes creates the indexes used by feed queries.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := db.Collection(mongoMessagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}}},
	})
	return err
}

func (s *mongoMessageRepository) Create(ctx context.Context, message *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	now := time.Now().UTC()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	message.UpdatedAt = now
	if message.StarredBy == nil {
		message.StarredBy = []string{}
	}
	if message.ReadBy == nil {
		message.ReadBy = []string{}
	}

	_, err := s.messages.InsertOne(ctx, message)
	return err
}

func (s *mongoMessageRepository) FindByID(ctx context.Context, conversationPath, id string) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var message models.Message
	err := s.messages.FindOne(ctx, bson.M{"_id": id, "conversation": conversationPath}).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return message, err
}

func (s *mongoMessageRepository) List(ctx context.Context, conversationPath string, filter MessageFilter) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	query := bson.M{"conversation": conversationPath}
	if filter.Before != nil && !filter.Before.IsZero() {
		query["created_at"] = bson.M{"$lt": *filter.Before}
	}

	direction := 1
	if filter.Descending {
		direction = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: direction}, {Key: "_id", Value: direction}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.messages.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *mongoMessageRepository) SetStar(ctx context.Context, conversationPath, id, userID string, starred bool, at time.Time) (models.Message, error) {
	var update bson.M
	if starred {
		update = bson.M{
			"$addToSet": bson.M{"starred_by": userID},
			"$set":      bson.M{"starred_at": at, "updated_at": time.Now().UTC()},
		}
	} else {
		update = bson.M{
			"$pull": bson.M{"starred_by": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		}
	}
	return s.updateMessage(ctx, conversationPath, id, update)
}

func (s *mongoMessageRepository) SetPinned(ctx context.Context, conversationPath, id string, pinned bool) (models.Message, error) {
	return s.updateMessage(ctx, conversationPath, id, bson.M{
		"$set": bson.M{"is_pinned": pinned, "updated_at": time.Now().UTC()},
	})
}

func (s *mongoMessageRepository) MarkRead(ctx context.Context, conversationPath, id, userID string) (models.Message, error) {
	return s.updateMessage(ctx, conversationPath, id, bson.M{
		"$addToSet": bson.M{"read_by": userID},
		"$set":      bson.M{"is_read": true, "updated_at": time.Now().UTC()},
	})
}

func (s *mongoMessageRepository) Delete(ctx context.Context, conversationPath, id string) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	result, err := s.messages.DeleteOne(ctx, bson.M{"_id": id, "conversation": conversationPath})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *mongoMessageRepository) updateMessage(ctx context.Context, conversationPath, id string, update bson.M) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var message models.Message
	err := s.messages.FindOneAndUpdate(ctx, bson.M{"_id": id, "conversation": conversationPath}, update, opts).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return message, err
}

func (s *mongoConversationRepository) Get(ctx context.Context, loc conversation.Location) (models.ConversationMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var meta models.ConversationMeta
	err := s.conversations.FindOne(ctx, bson.M{"_id": loc.MetadataPath}).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ConversationMeta{}, ErrConversationNotFound
	}
	return meta, err
}

func (s *mongoConversationRepository) ListByGroups(ctx context.Context, groupIDs []string) ([]models.ConversationMeta, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	cursor, err := s.conversations.Find(ctx,
		bson.M{"group_id": bson.M{"$in": groupIDs}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	var metas []models.ConversationMeta
	if err := cursor.All(ctx, &metas); err != nil {
		return nil, err
	}
	return metas, nil
}

func (s *mongoConversationRepository) Ensure(ctx context.Context, loc conversation.Location) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": loc.MetadataPath},
		bson.M{"$setOnInsert": bson.M{
			"scope":          string(loc.Scope),
			"group_id":       loc.GroupID,
			"inner_group_id": loc.InnerGroupID,
			"participants":   bson.M{},
			"updated_at":     time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoConversationRepository) RecordMessage(ctx context.Context, loc conversation.Location, last LastMessage) (models.ConversationMeta, error) {
	set := bson.M{
		"last_message_text": last.Text,
		"last_message_kind": last.Kind,
		"last_sender_id":    last.SenderID,
		"last_message_at":   last.At,
		"updated_at":        time.Now().UTC(),
	}
	if last.SenderID != "" && last.SenderName != "" {
		set["participants."+last.SenderID] = last.SenderName
	}
	return s.upsertMeta(ctx, loc, bson.M{"$set": set})
}

func (s *mongoConversationRepository) SetPinned(ctx context.Context, loc conversation.Location, messageID *string) (models.ConversationMeta, error) {
	return s.upsertMeta(ctx, loc, bson.M{"$set": bson.M{
		"pinned_message_id": messageID,
		"updated_at":        time.Now().UTC(),
	}})
}

func (s *mongoConversationRepository) ClearPinnedIf(ctx context.Context, loc conversation.Location, messageID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	result, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": loc.MetadataPath, "pinned_message_id": messageID},
		bson.M{"$set": bson.M{"pinned_message_id": nil, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

func (s *mongoConversationRepository) upsertMeta(ctx context.Context, loc conversation.Location, update bson.M) (models.ConversationMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	update["$setOnInsert"] = bson.M{
		"scope":          string(loc.Scope),
		"group_id":       loc.GroupID,
		"inner_group_id": loc.InnerGroupID,
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var meta models.ConversationMeta
	err := s.conversations.FindOneAndUpdate(ctx, bson.M{"_id": loc.MetadataPath}, update, opts).Decode(&meta)
	return meta, err
}
