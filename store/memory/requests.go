package memory

import (
	"context"
	"sort"
	"time"

	"whisper-service/model"
	"whisper-service/store"
)

func (s *Store) CreateRequest(_ context.Context, r *model.MessageRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		samePair := (existing.SenderID == r.SenderID && existing.RecipientID == r.RecipientID) ||
			(existing.SenderID == r.RecipientID && existing.RecipientID == r.SenderID)
		if samePair && existing.Status.Active() {
			return store.ErrDuplicate
		}
	}
	s.nextRequestID++
	r.ID = s.nextRequestID
	r.CreatedAt = time.Now()
	if r.Status == "" {
		r.Status = model.RequestPending
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *Store) GetRequest(_ context.Context, id uint) (*model.MessageRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &req, nil
}

func (s *Store) FindActiveBetween(_ context.Context, a, b uint) (*model.MessageRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		samePair := (req.SenderID == a && req.RecipientID == b) ||
			(req.SenderID == b && req.RecipientID == a)
		if samePair && req.Status.Active() {
			found := req
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) TransitionRequest(_ context.Context, id uint, from, to model.RequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	req.UpdatedAt = time.Now()
	s.requests[id] = req
	return true, nil
}

func (s *Store) AcceptRequest(_ context.Context, requestID, conversationID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok || req.Status != model.RequestPending {
		return false, nil
	}
	req.Status = model.RequestAccepted
	req.ConversationID = &conversationID
	req.UpdatedAt = time.Now()
	s.requests[requestID] = req
	return true, nil
}

func (s *Store) ListInbox(_ context.Context, recipientID uint) ([]model.MessageRequest, error) {
	return s.listRequests(func(r model.MessageRequest) bool { return r.RecipientID == recipientID }), nil
}

func (s *Store) ListOutbox(_ context.Context, senderID uint) ([]model.MessageRequest, error) {
	return s.listRequests(func(r model.MessageRequest) bool { return r.SenderID == senderID }), nil
}

func (s *Store) listRequests(match func(model.MessageRequest) bool) []model.MessageRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var reqs []model.MessageRequest
	for _, req := range s.requests {
		if match(req) {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID > reqs[j].ID })
	return reqs
}

func (s *Store) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, req := range s.requests {
		if req.Status == model.RequestPending && req.ExpiresAt.Before(now) {
			req.Status = model.RequestExpired
			req.UpdatedAt = now
			s.requests[id] = req
			n++
		}
	}
	return n, nil
}
