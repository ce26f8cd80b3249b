package postgres

import (
	"context"

	"gorm.io/gorm"

	"whisper-service/model"
)

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation, first *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The unique index on request_id makes a concurrent double
		// accept fail here as ErrDuplicate.
		if err := tx.Create(c).Error; err != nil {
			return translate(err)
		}
		first.ConversationID = c.ID
		if err := tx.Create(first).Error; err != nil {
			return err
		}
		c.MessageCount = 1
		c.LastMessagePreview = first.Content
		c.LastMessageAt = &first.CreatedAt
		return tx.Save(c).Error
	})
}

func (s *Store) GetConversation(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Preload("Participants").First(&conv, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID uint) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Where("initiator_id = ? OR recipient_id = ?", userID, userID).
		Where("status <> ?", model.ConversationDeleted).
		Order("last_message_at DESC NULLS LAST").
		Find(&convs).Error
	return convs, err
}

func (s *Store) SaveConversation(ctx context.Context, c *model.Conversation) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(c).Error
}

func (s *Store) SaveParticipant(ctx context.Context, p *model.Participant) error {
	return s.db.WithContext(ctx).Save(p).Error
}
