package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-service/apperror"
	"whisper-service/model"
)

func (h *harness) conversationAtLimit(t *testing.T) *model.Conversation {
	t.Helper()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, testFreeLimit-1)
	return conv
}

func TestCreateOrderGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)

	_, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict), "the gate is still open")

	h.sendN(t, conv.ID, h.alice, testFreeLimit-1)

	_, err = h.gate.CreateOrder(ctx, conv.ID, h.bob)
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden), "only the initiator pays")

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	assert.Equal(t, testPrice, order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, testFreeLimit, order.CurrentCount)
	assert.Equal(t, 0, order.PaidCycles)

	_, err = h.gate.CreateOrder(ctx, 999, h.alice)
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
}

func TestVerifyAndApply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	paymentID, signature := h.provider.Settle(order.OrderID)

	_, err = h.gate.VerifyAndApply(ctx, conv.ID, order.OrderID, paymentID, "forged")
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))

	got, err := h.gate.VerifyAndApply(ctx, conv.ID, order.OrderID, paymentID, signature)
	require.NoError(t, err)
	assert.Equal(t, 1, got.InitiatorPaidCycles)
	assert.Equal(t, order.OrderID, got.LastOrderID)
	assert.Equal(t, paymentID, got.LastPaymentID)
	assert.NotNil(t, got.LastPaidAt)
}

func TestVerifyAndApplyIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	paymentID, signature := h.provider.Settle(order.OrderID)

	for i := 0; i < 3; i++ {
		got, err := h.gate.VerifyAndApply(ctx, conv.ID, order.OrderID, paymentID, signature)
		require.NoError(t, err)
		assert.Equal(t, 1, got.InitiatorPaidCycles, "one order credits one cycle, ever")
	}
}

func TestConcurrentConfirmationsCreditOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	paymentID, signature := h.provider.Settle(order.OrderID)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.gate.VerifyAndApply(ctx, conv.ID, order.OrderID, paymentID, signature)
			assert.NoError(t, err)
		}()
	}
	// The provider webhook races the client confirmations.
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.gate.HandleWebhook(ctx, WebhookEvent{OrderID: order.OrderID, PaymentID: paymentID, Signature: signature, Status: "captured"})
	}()
	wg.Wait()

	got, err := h.manager.Get(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	assert.Equal(t, 1, got.InitiatorPaidCycles)
}

func TestVerifyRejectsWrongConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	paymentID, signature := h.provider.Settle(order.OrderID)

	_, err = h.gate.VerifyAndApply(ctx, conv.ID+1, order.OrderID, paymentID, signature)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalid))

	_, err = h.gate.VerifyAndApply(ctx, conv.ID, "order_unknown", paymentID, signature)
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
}

func TestVerifyRejectsUnsettledPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)

	paymentID, signature := h.provider.Settle(order.OrderID)
	_, err = h.gate.VerifyAndApply(ctx, conv.ID, order.OrderID, "pay_missing", signature)
	assert.Error(t, err, "signature no longer matches the substituted payment id")

	// Sanity: the real pair still applies.
	_, err = h.gate.VerifyAndApply(ctx, conv.ID, order.OrderID, paymentID, signature)
	require.NoError(t, err)
}

func TestWebhookAppliesSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	paymentID, signature := h.provider.Settle(order.OrderID)

	h.gate.HandleWebhook(ctx, WebhookEvent{OrderID: order.OrderID, PaymentID: paymentID, Signature: signature, Status: "captured"})

	got, err := h.manager.Get(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	assert.Equal(t, 1, got.InitiatorPaidCycles)

	// Replays are harmless.
	h.gate.HandleWebhook(ctx, WebhookEvent{OrderID: order.OrderID, PaymentID: paymentID, Signature: signature, Status: "captured"})
	got, _ = h.manager.Get(ctx, conv.ID, h.alice)
	assert.Equal(t, 1, got.InitiatorPaidCycles)
}

func TestWebhookToleratesGarbage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	h.gate.HandleWebhook(ctx, WebhookEvent{OrderID: "order_unknown", PaymentID: "pay_x", Signature: "sig"})

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	h.gate.HandleWebhook(ctx, WebhookEvent{OrderID: order.OrderID, PaymentID: "pay_x", Signature: "forged"})

	got, err := h.manager.Get(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	assert.Equal(t, 0, got.InitiatorPaidCycles, "nothing credited")
}

// A webhook arrives whose signature fails (e.g. rotated secret) but
// whose payment id is real. The next status check reconciles against
// the provider and credits the cycle.
func TestReconcileClosesWebhookGap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.conversationAtLimit(t)

	order, err := h.gate.CreateOrder(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	paymentID, _ := h.provider.Settle(order.OrderID)

	h.gate.HandleWebhook(ctx, WebhookEvent{OrderID: order.OrderID, PaymentID: paymentID, Signature: "unverifiable"})
	got, err := h.manager.Get(ctx, conv.ID, h.alice)
	require.NoError(t, err)
	assert.Equal(t, 0, got.InitiatorPaidCycles, "the unverified webhook only records the payment id")

	status, err := h.manager.Status(ctx, conv.ID, h.alice, h.gate)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PaidCycles, "status check reconciled the settlement")
	assert.False(t, status.NeedsToPay)
}

func TestPurchaseAndListPacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.gate.PurchasePack(ctx, h.alice, 0, time.Hour)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalid))

	pack, err := h.gate.PurchasePack(ctx, h.alice, 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 10, pack.Total)
	assert.Equal(t, 10, pack.Remaining)

	packs, err := h.gate.ListPacks(ctx, h.alice)
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, pack.ID, packs[0].ID)
}
