package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"whisper-service/model"
)

func (s *Store) CreateOrder(ctx context.Context, o *model.PaymentOrder) error {
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *Store) GetOrderByProviderID(ctx context.Context, providerOrderID string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	err := s.db.WithContext(ctx).
		Where("provider_order_id = ?", providerOrderID).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *Store) ListOpenOrders(ctx context.Context, conversationID uint) ([]model.PaymentOrder, error) {
	var orders []model.PaymentOrder
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND status = ?", conversationID, model.OrderCreated).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (s *Store) SaveOrder(ctx context.Context, o *model.PaymentOrder) error {
	return s.db.WithContext(ctx).Save(o).Error
}

func (s *Store) CreatePack(ctx context.Context, p *model.RequestPack) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) ListPacks(ctx context.Context, userID uint) ([]model.RequestPack, error) {
	var packs []model.RequestPack
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("expires_at ASC").
		Find(&packs).Error
	return packs, err
}

func (s *Store) ListUsablePacks(ctx context.Context, userID uint, now time.Time) ([]model.RequestPack, error) {
	var packs []model.RequestPack
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND remaining > 0 AND expires_at > ?", userID, now).
		Order("expires_at ASC").
		Find(&packs).Error
	return packs, err
}

func (s *Store) ConsumePack(ctx context.Context, packID uint) (bool, error) {
	// Compare-and-decrement; a concurrent consumer of the same pack's
	// last unit loses cleanly.
	res := s.db.WithContext(ctx).
		Model(&model.RequestPack{}).
		Where("id = ? AND remaining > 0", packID).
		UpdateColumn("remaining", gorm.Expr("remaining - 1"))
	return res.RowsAffected > 0, res.Error
}

func (s *Store) RefundPack(ctx context.Context, packID uint) error {
	// Never pushes Remaining above the purchased size.
	return s.db.WithContext(ctx).
		Model(&model.RequestPack{}).
		Where("id = ? AND remaining < total", packID).
		UpdateColumn("remaining", gorm.Expr("remaining + 1")).Error
}
