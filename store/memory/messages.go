package memory

import (
	"context"
	"time"

	"whisper-service/model"
	"whisper-service/store"
)

func (s *Store) CreateMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsgID++
	m.ID = s.nextMsgID
	m.CreatedAt = time.Now()
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	s.messages[m.ID] = *m
	s.msgOrder = append(s.msgOrder, m.ID)
	return nil
}

func (s *Store) GetMessage(_ context.Context, id uint) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &msg, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID uint, beforeID uint, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []model.Message
	for _, id := range s.msgOrder {
		msg := s.messages[id]
		if msg.ConversationID != conversationID {
			continue
		}
		if beforeID > 0 && msg.ID >= beforeID {
			continue
		}
		msgs = append(msgs, msg)
		if limit > 0 && len(msgs) == limit {
			break
		}
	}
	return msgs, nil
}

func (s *Store) SaveMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		return store.ErrNotFound
	}
	m.UpdatedAt = time.Now()
	s.messages[m.ID] = *m
	return nil
}

func (s *Store) AdvanceStatus(_ context.Context, conversationID, recipientID uint, ids []uint, target model.DeliveryStatus, at time.Time) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[uint]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var affected []uint
	for _, id := range s.msgOrder {
		msg := s.messages[id]
		if msg.ConversationID != conversationID || msg.RecipientID != recipientID {
			continue
		}
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		if !msg.Status.Before(target) {
			continue
		}
		msg.Status = target
		switch target {
		case model.StatusDelivered:
			msg.DeliveredAt = &at
		case model.StatusRead:
			msg.ReadAt = &at
		}
		s.messages[id] = msg
		affected = append(affected, id)
	}
	return affected, nil
}

func (s *Store) SetReaction(_ context.Context, messageID, userID uint, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range msg.Reactions {
		if msg.Reactions[i].UserID == userID {
			msg.Reactions[i].Emoji = emoji
			msg.Reactions[i].UpdatedAt = time.Now()
			s.messages[messageID] = msg
			return nil
		}
	}
	msg.Reactions = append(msg.Reactions, model.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	})
	s.messages[messageID] = msg
	return nil
}
