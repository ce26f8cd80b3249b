package postgres

import (
	"context"
	"errors"
	"time"

	"whisper-service/model"
	"whisper-service/store"
)

func (s *Store) CreateRequest(ctx context.Context, r *model.MessageRequest) error {
	// The partial unique index on the ordered pair turns a lost race
	// into ErrDuplicate instead of a second active request.
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id uint) (*model.MessageRequest, error) {
	var req model.MessageRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (s *Store) FindActiveBetween(ctx context.Context, a, b uint) (*model.MessageRequest, error) {
	var req model.MessageRequest
	err := s.db.WithContext(ctx).
		Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)) AND status IN ?",
			a, b, b, a, []model.RequestStatus{model.RequestPending, model.RequestAccepted}).
		First(&req).Error
	if err != nil {
		if errors.Is(translate(err), store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (s *Store) TransitionRequest(ctx context.Context, id uint, from, to model.RequestStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.MessageRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) AcceptRequest(ctx context.Context, requestID, conversationID uint) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.MessageRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestPending).
		Updates(map[string]any{
			"status":          model.RequestAccepted,
			"conversation_id": conversationID,
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ListInbox(ctx context.Context, recipientID uint) ([]model.MessageRequest, error) {
	var reqs []model.MessageRequest
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("id DESC").
		Find(&reqs).Error
	return reqs, err
}

func (s *Store) ListOutbox(ctx context.Context, senderID uint) ([]model.MessageRequest, error) {
	var reqs []model.MessageRequest
	err := s.db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("id DESC").
		Find(&reqs).Error
	return reqs, err
}

func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	// The status guard keeps concurrent sweeps from double-transitioning.
	res := s.db.WithContext(ctx).
		Model(&model.MessageRequest{}).
		Where("status = ? AND expires_at < ?", model.RequestPending, now).
		Update("status", model.RequestExpired)
	return res.RowsAffected, res.Error
}
