package memory

import (
	"context"
	"sort"
	"time"

	"whisper-service/model"
	"whisper-service/store"
)

func (s *Store) CreateConversation(_ context.Context, c *model.Conversation, first *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mirrors the unique index on request_id: at most one conversation
	// per request, so a lost accept race surfaces as ErrDuplicate.
	for _, existing := range s.conversations {
		if existing.RequestID == c.RequestID {
			return store.ErrDuplicate
		}
	}

	now := time.Now()
	s.nextConvID++
	c.ID = s.nextConvID
	c.CreatedAt = now
	for i := range c.Participants {
		s.nextPartID++
		c.Participants[i].ID = s.nextPartID
		c.Participants[i].ConversationID = c.ID
		c.Participants[i].CreatedAt = now
	}

	s.nextMsgID++
	first.ID = s.nextMsgID
	first.ConversationID = c.ID
	first.CreatedAt = now
	s.messages[first.ID] = *first
	s.msgOrder = append(s.msgOrder, first.ID)

	c.MessageCount = 1
	c.LastMessagePreview = first.Content
	c.LastMessageAt = &first.CreatedAt
	s.conversations[c.ID] = clone(c)
	return nil
}

func (s *Store) GetConversation(_ context.Context, id uint) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clone(&conv)
	return &out, nil
}

func (s *Store) ListConversations(_ context.Context, userID uint) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.Status == model.ConversationDeleted {
			continue
		}
		if conv.InitiatorID == userID || conv.RecipientID == userID {
			convs = append(convs, clone(&conv))
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		ti, tj := convs[i].LastMessageAt, convs[j].LastMessageAt
		if ti == nil || tj == nil {
			return ti != nil
		}
		return ti.After(*tj)
	})
	return convs, nil
}

func (s *Store) SaveConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	s.conversations[c.ID] = clone(c)
	return nil
}

func (s *Store) SaveParticipant(_ context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[p.ConversationID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == p.UserID {
			conv.Participants[i] = *p
			s.conversations[conv.ID] = conv
			return nil
		}
	}
	return store.ErrNotFound
}

// clone copies the aggregate so callers never share participant
// backing arrays with the store.
func clone(c *model.Conversation) model.Conversation {
	out := *c
	out.Participants = append([]model.Participant(nil), c.Participants...)
	return out
}
