package memory

import (
	"context"

	"whisper-service/model"
	"whisper-service/store"
)

func (s *Store) GetUser(_ context.Context, id uint) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) BlockedEither(_ context.Context, a, b uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, blk := range s.blocks {
		if (blk.BlockerID == a && blk.BlockedID == b) || (blk.BlockerID == b && blk.BlockedID == a) {
			return true, nil
		}
	}
	return false, nil
}
