package memory

import (
	"context"
	"sort"
	"time"

	"whisper-service/model"
	"whisper-service/store"
)

func (s *Store) CreateOrder(_ context.Context, o *model.PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrderID++
	o.ID = s.nextOrderID
	o.CreatedAt = time.Now()
	if o.Status == "" {
		o.Status = model.OrderCreated
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) GetOrderByProviderID(_ context.Context, providerOrderID string) (*model.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, order := range s.orders {
		if order.ProviderOrderID == providerOrderID {
			found := order
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListOpenOrders(_ context.Context, conversationID uint) ([]model.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []model.PaymentOrder
	for _, order := range s.orders {
		if order.ConversationID == conversationID && order.Status == model.OrderCreated {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *Store) SaveOrder(_ context.Context, o *model.PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	o.UpdatedAt = time.Now()
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) CreatePack(_ context.Context, p *model.RequestPack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPackID++
	p.ID = s.nextPackID
	p.CreatedAt = time.Now()
	s.packs[p.ID] = *p
	return nil
}

func (s *Store) ListPacks(_ context.Context, userID uint) ([]model.RequestPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var packs []model.RequestPack
	for _, pack := range s.packs {
		if pack.UserID == userID {
			packs = append(packs, pack)
		}
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ExpiresAt.Before(packs[j].ExpiresAt) })
	return packs, nil
}

func (s *Store) ListUsablePacks(_ context.Context, userID uint, now time.Time) ([]model.RequestPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var packs []model.RequestPack
	for _, pack := range s.packs {
		if pack.UserID == userID && pack.Usable(now) {
			packs = append(packs, pack)
		}
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ExpiresAt.Before(packs[j].ExpiresAt) })
	return packs, nil
}

func (s *Store) ConsumePack(_ context.Context, packID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[packID]
	if !ok || pack.Remaining <= 0 {
		return false, nil
	}
	pack.Remaining--
	pack.UpdatedAt = time.Now()
	s.packs[packID] = pack
	return true, nil
}

func (s *Store) RefundPack(_ context.Context, packID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[packID]
	if !ok || pack.Remaining >= pack.Total {
		return nil
	}
	pack.Remaining++
	pack.UpdatedAt = time.Now()
	s.packs[packID] = pack
	return nil
}
