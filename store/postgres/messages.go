package postgres

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"whisper-service/model"
)

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) GetMessage(ctx context.Context, id uint) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Preload("Reactions").First(&msg, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]model.Message, error) {
	q := s.db.WithContext(ctx).
		Preload("Reactions").
		Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	// Insertion order is the authoritative conversation order.
	var msgs []model.Message
	err := q.Order("id ASC").Find(&msgs).Error
	return msgs, err
}

func (s *Store) SaveMessage(ctx context.Context, m *model.Message) error {
	return s.db.WithContext(ctx).Save(m).Error
}

func (s *Store) AdvanceStatus(ctx context.Context, conversationID, recipientID uint, ids []uint, target model.DeliveryStatus, at time.Time) ([]uint, error) {
	// Only rows still below the target move; delivered/read never
	// regress. Failed rows are eligible: an ack proves receipt.
	eligible := []model.DeliveryStatus{model.StatusSent, model.StatusFailed}
	if target == model.StatusRead {
		eligible = append(eligible, model.StatusDelivered)
	}

	q := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND status IN ?", conversationID, recipientID, eligible)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}

	var affected []uint
	if err := q.Pluck("id", &affected).Error; err != nil {
		return nil, err
	}
	if len(affected) == 0 {
		return nil, nil
	}

	err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id IN ? AND status IN ?", affected, eligible).
		Updates(statusUpdate(target, at)).Error
	return affected, err
}

func statusUpdate(target model.DeliveryStatus, at time.Time) map[string]any {
	values := map[string]any{"status": target}
	switch target {
	case model.StatusDelivered:
		values["delivered_at"] = at
	case model.StatusRead:
		values["read_at"] = at
	}
	return values
}

func (s *Store) SetReaction(ctx context.Context, messageID, userID uint, emoji string) error {
	reaction := model.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	// Re-reacting replaces the previous emoji in place.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(&reaction).Error
}
