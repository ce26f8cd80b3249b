package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whisper-service/apperror"
	"whisper-service/model"
	"whisper-service/payment"
	"whisper-service/store"
)

// PaymentGate decides when the unrevealed initiator must pay and
// applies settlements exactly once, whether they arrive through the
// synchronous verify call, the provider webhook, or the reconcile
// sweep on a status check.
type PaymentGate struct {
	stores   store.Stores
	provider payment.Provider
	locks    *ConversationLocks
	logger   zerolog.Logger

	freeLimit    int
	messagePrice int64
	currency     string
	now          func() time.Time
}

func NewPaymentGate(
	stores store.Stores,
	provider payment.Provider,
	locks *ConversationLocks,
	logger zerolog.Logger,
	freeLimit int,
	messagePrice int64,
	currency string,
) *PaymentGate {
	return &PaymentGate{
		stores:       stores,
		provider:     provider,
		locks:        locks,
		logger:       logger,
		freeLimit:    freeLimit,
		messagePrice: messagePrice,
		currency:     currency,
		now:          time.Now,
	}
}

// OrderResponse carries everything the client needs to run the
// provider checkout.
type OrderResponse struct {
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	FreeMessageLimit int    `json:"free_message_limit"`
	CurrentCount     int    `json:"current_count"`
	PaidCycles       int    `json:"paid_cycles"`
}

// CreateOrder mints a provider order for the next message cycle. Valid
// only while the gate is actually closed.
func (p *PaymentGate) CreateOrder(ctx context.Context, conversationID, userID uint) (*OrderResponse, error) {
	lock := p.locks.For(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := p.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.InitiatorID != userID {
		return nil, apperror.Forbidden("only the initiator pays for messages")
	}

	initiatorSide := conv.InitiatorSide()
	if !model.NeedsToPay(conv.InitiatorMessageCount, conv.InitiatorPaidCycles, p.freeLimit, initiatorSide.IsRevealed) {
		return nil, apperror.Conflict("payment is not required right now")
	}

	receipt := fmt.Sprintf("conv-%d-%s", conv.ID, uuid.NewString()[:8])
	order, err := p.provider.CreateOrder(ctx, p.messagePrice, p.currency, receipt, map[string]string{
		"conversation_id": fmt.Sprint(conv.ID),
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "creating provider order", err)
	}

	record := &model.PaymentOrder{
		ConversationID:  conv.ID,
		UserID:          userID,
		ProviderOrderID: order.ID,
		Receipt:         receipt,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Status:          model.OrderCreated,
	}
	if err := p.stores.Payments.CreateOrder(ctx, record); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "saving order", err)
	}

	return &OrderResponse{
		OrderID:          order.ID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		FreeMessageLimit: p.freeLimit,
		CurrentCount:     conv.InitiatorMessageCount,
		PaidCycles:       conv.InitiatorPaidCycles,
	}, nil
}

// VerifyAndApply checks the client-reported settlement and credits one
// cycle. Idempotent: re-verifying the same payment is a no-op success.
func (p *PaymentGate) VerifyAndApply(ctx context.Context, conversationID uint, orderID, paymentID, signature string) (*model.Conversation, error) {
	order, err := p.order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ConversationID != conversationID {
		return nil, apperror.Invalid("order does not belong to this conversation")
	}
	if order.Applied() && order.PaymentID == paymentID {
		return p.conversation(ctx, conversationID)
	}

	if !p.provider.VerifySignature(orderID, paymentID, signature) {
		return nil, apperror.Forbidden("invalid payment signature")
	}
	settled, err := p.provider.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "fetching payment", err)
	}
	if settled.Status != payment.PaymentCaptured {
		return nil, apperror.Conflict("payment is not settled")
	}
	if settled.Amount != order.Amount {
		return nil, apperror.Conflict("payment amount mismatch")
	}

	return p.apply(ctx, order, paymentID)
}

// apply credits exactly one cycle for an order, under the conversation
// lock. The stored paymentId/orderId is the idempotency key shared by
// verify, webhook and reconcile.
func (p *PaymentGate) apply(ctx context.Context, order *model.PaymentOrder, paymentID string) (*model.Conversation, error) {
	lock := p.locks.For(order.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read both records inside the lock; a concurrent confirmation
	// for the same order may have won.
	order, err := p.order(ctx, order.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	conv, err := p.conversation(ctx, order.ConversationID)
	if err != nil {
		return nil, err
	}
	if order.Applied() {
		return conv, nil
	}

	now := p.now()
	conv.InitiatorPaidCycles++
	conv.LastOrderID = order.ProviderOrderID
	conv.LastPaymentID = paymentID
	conv.LastPaidAt = &now
	if err := p.stores.Conversations.SaveConversation(ctx, conv); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "crediting payment cycle", err)
	}

	order.Status = model.OrderPaid
	order.PaymentID = paymentID
	order.AppliedAt = &now
	if err := p.stores.Payments.SaveOrder(ctx, order); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "marking order paid", err)
	}

	p.logger.Info().
		Uint("conversation_id", conv.ID).
		Str("order_id", order.ProviderOrderID).
		Str("payment_id", paymentID).
		Int("paid_cycles", conv.InitiatorPaidCycles).
		Msg("payment cycle applied")
	return conv, nil
}

// WebhookEvent is the provider's asynchronous settlement push.
type WebhookEvent struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

// HandleWebhook reconciles an asynchronous settlement against the same
// idempotency key as the verify path. It always acknowledges: events
// that fail verification or match no known order are logged, and the
// gap is closed by Reconcile on the next status check.
func (p *PaymentGate) HandleWebhook(ctx context.Context, ev WebhookEvent) {
	order, err := p.order(ctx, ev.OrderID)
	if err != nil {
		p.logger.Warn().Str("order_id", ev.OrderID).Msg("webhook for unknown order")
		return
	}

	// Remember the payment id even when we cannot verify yet, so the
	// reconcile sweep can pick the settlement up later.
	if order.PaymentID == "" && ev.PaymentID != "" {
		order.PaymentID = ev.PaymentID
		if err := p.stores.Payments.SaveOrder(ctx, order); err != nil {
			p.logger.Warn().Err(err).Str("order_id", ev.OrderID).Msg("recording webhook payment id")
		}
	}

	if !p.provider.VerifySignature(ev.OrderID, ev.PaymentID, ev.Signature) {
		p.logger.Warn().Str("order_id", ev.OrderID).Msg("webhook signature verification failed")
		return
	}
	settled, err := p.provider.FetchPayment(ctx, ev.PaymentID)
	if err != nil || settled.Status != payment.PaymentCaptured || settled.Amount != order.Amount {
		p.logger.Warn().Err(err).Str("order_id", ev.OrderID).Msg("webhook payment not settled")
		return
	}

	if _, err := p.apply(ctx, order, ev.PaymentID); err != nil {
		p.logger.Error().Err(err).Str("order_id", ev.OrderID).Msg("webhook apply failed")
	}
}

// Reconcile re-queries the provider for open orders that have a
// payment id on file but were never credited, closing the webhook gap.
func (p *PaymentGate) Reconcile(ctx context.Context, conversationID uint) {
	orders, err := p.stores.Payments.ListOpenOrders(ctx, conversationID)
	if err != nil {
		p.logger.Warn().Err(err).Uint("conversation_id", conversationID).Msg("listing open orders")
		return
	}
	for i := range orders {
		order := orders[i]
		if order.PaymentID == "" {
			continue
		}
		settled, err := p.provider.FetchPayment(ctx, order.PaymentID)
		if err != nil || settled.Status != payment.PaymentCaptured || settled.Amount != order.Amount {
			continue
		}
		if _, err := p.apply(ctx, &order, order.PaymentID); err != nil {
			p.logger.Warn().Err(err).Str("order_id", order.ProviderOrderID).Msg("reconcile apply failed")
		}
	}
}

// PurchasePack credits a bundle of extra request sends.
func (p *PaymentGate) PurchasePack(ctx context.Context, userID uint, size int, validity time.Duration) (*model.RequestPack, error) {
	if size <= 0 {
		return nil, apperror.Invalid("pack size must be positive")
	}
	pack := &model.RequestPack{
		UserID:    userID,
		Total:     size,
		Remaining: size,
		ExpiresAt: p.now().Add(validity),
	}
	if err := p.stores.Packs.CreatePack(ctx, pack); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "creating pack", err)
	}
	return pack, nil
}

func (p *PaymentGate) ListPacks(ctx context.Context, userID uint) ([]model.RequestPack, error) {
	packs, err := p.stores.Packs.ListPacks(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "listing packs", err)
	}
	return packs, nil
}

func (p *PaymentGate) conversation(ctx context.Context, id uint) (*model.Conversation, error) {
	conv, err := p.stores.Conversations.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("conversation not found")
		}
		return nil, apperror.Wrap(apperror.CodeInternal, "loading conversation", err)
	}
	return conv, nil
}

func (p *PaymentGate) order(ctx context.Context, providerOrderID string) (*model.PaymentOrder, error) {
	order, err := p.stores.Payments.GetOrderByProviderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("order not found")
		}
		return nil, apperror.Wrap(apperror.CodeInternal, "loading order", err)
	}
	return order, nil
}
