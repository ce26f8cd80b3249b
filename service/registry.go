package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"whisper-service/apperror"
	"whisper-service/event"
	"whisper-service/model"
	"whisper-service/notify"
	"whisper-service/store"
)

// RequestRegistry owns the message-request state machine and the daily
// send quota.
type RequestRegistry struct {
	stores     store.Stores
	quota      store.Quota
	bus        event.Bus
	dispatcher notify.Dispatcher
	logger     zerolog.Logger

	dailyFree  int
	requestTTL time.Duration
	now        func() time.Time
}

func NewRequestRegistry(
	stores store.Stores,
	quota store.Quota,
	bus event.Bus,
	dispatcher notify.Dispatcher,
	logger zerolog.Logger,
	dailyFree int,
	requestTTL time.Duration,
) *RequestRegistry {
	return &RequestRegistry{
		stores:     stores,
		quota:      quota,
		bus:        bus,
		dispatcher: dispatcher,
		logger:     logger,
		dailyFree:  dailyFree,
		requestTTL: requestTTL,
		now:        time.Now,
	}
}

type SendRequestInput struct {
	SenderID    uint
	RecipientID uint
	Text        string
	Source      string
	Anonymous   bool
}

func (r *RequestRegistry) SendRequest(ctx context.Context, in SendRequestInput) (*model.MessageRequest, error) {
	if in.SenderID == in.RecipientID {
		return nil, apperror.Invalid("cannot send a request to yourself")
	}
	if in.Text == "" {
		return nil, apperror.Invalid("initial message is required")
	}

	sender, err := r.stores.Users.GetUser(ctx, in.SenderID)
	if err != nil {
		return nil, userErr(err, "sender")
	}
	recipient, err := r.stores.Users.GetUser(ctx, in.RecipientID)
	if err != nil {
		return nil, userErr(err, "recipient")
	}

	blocked, err := r.stores.Users.BlockedEither(ctx, in.SenderID, in.RecipientID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "checking blocks", err)
	}
	if blocked {
		return nil, apperror.Forbidden("messaging is not available between these users")
	}

	if !recipient.AcceptsRequestFrom(sender) {
		return nil, apperror.Forbidden("recipient does not accept requests from you")
	}

	active, err := r.stores.Requests.FindActiveBetween(ctx, in.SenderID, in.RecipientID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "checking existing requests", err)
	}
	if active != nil {
		return nil, apperror.Conflict("an active request already exists between you")
	}

	now := r.now()
	packID, err := r.consumeQuota(ctx, in.SenderID, now)
	if err != nil {
		return nil, err
	}

	req := &model.MessageRequest{
		SenderID:       in.SenderID,
		RecipientID:    in.RecipientID,
		InitialMessage: in.Text,
		Status:         model.RequestPending,
		IsAnonymous:    in.Anonymous,
		Source:         in.Source,
		ExpiresAt:      now.Add(r.requestTTL),
	}
	if err := r.stores.Requests.CreateRequest(ctx, req); err != nil {
		// Hand the consumed unit back; the request never existed.
		r.refundQuota(ctx, in.SenderID, now, packID)
		if errors.Is(err, store.ErrDuplicate) {
			// The advisory FindActiveBetween check above raced; the
			// unique pair constraint is the authority.
			return nil, apperror.Conflict("an active request already exists between you")
		}
		return nil, apperror.Wrap(apperror.CodeInternal, "creating request", err)
	}

	r.bus.Publish(event.UserRoom(in.RecipientID), event.NewEnvelope(event.NewRequest, req))
	r.dispatcher.Notify([]uint{in.RecipientID}, event.NewRequest, map[string]any{
		"request_id": req.ID,
		"anonymous":  req.IsAnonymous,
	})
	return req, nil
}

// consumeQuota burns one unit of today's free allowance, falling back
// to purchased packs oldest-expiry-first. The Redis INCR makes the free
// check atomic with respect to the UTC day boundary. Returns the id of
// the pack a unit came from, zero when the free allowance covered it.
func (r *RequestRegistry) consumeQuota(ctx context.Context, userID uint, now time.Time) (uint, error) {
	used, err := r.quota.Consume(ctx, userID, now)
	if err != nil {
		return 0, apperror.Wrap(apperror.CodeInternal, "consuming daily quota", err)
	}
	if used <= r.dailyFree {
		return 0, nil
	}

	packs, err := r.stores.Packs.ListUsablePacks(ctx, userID, now)
	if err != nil {
		return 0, apperror.Wrap(apperror.CodeInternal, "listing request packs", err)
	}
	for _, pack := range packs {
		taken, err := r.stores.Packs.ConsumePack(ctx, pack.ID)
		if err != nil {
			return 0, apperror.Wrap(apperror.CodeInternal, "consuming request pack", err)
		}
		if taken {
			return pack.ID, nil
		}
	}

	if rerr := r.quota.Release(ctx, userID, now); rerr != nil {
		r.logger.Warn().Err(rerr).Uint("user_id", userID).Msg("quota release failed")
	}
	return 0, apperror.QuotaExceeded("daily request limit reached")
}

// refundQuota undoes consumeQuota after a failed send: the daily
// counter always, plus the pack unit when one was spent.
func (r *RequestRegistry) refundQuota(ctx context.Context, userID uint, now time.Time, packID uint) {
	if err := r.quota.Release(ctx, userID, now); err != nil {
		r.logger.Warn().Err(err).Uint("user_id", userID).Msg("quota release failed")
	}
	if packID == 0 {
		return
	}
	if err := r.stores.Packs.RefundPack(ctx, packID); err != nil {
		r.logger.Warn().Err(err).Uint("pack_id", packID).Msg("pack refund failed")
	}
}

// Accept transitions a pending request and creates its conversation
// with the initial message as the opening Message.
func (r *RequestRegistry) Accept(ctx context.Context, requestID, byUserID uint) (*model.Conversation, error) {
	req, err := r.stores.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, requestErr(err)
	}
	if req.RecipientID != byUserID {
		return nil, apperror.Forbidden("only the recipient can accept a request")
	}

	if req.Status == model.RequestExpired {
		return nil, apperror.Expired("request has expired")
	}
	now := r.now()
	if req.LapsedAt(now) {
		if _, err := r.stores.Requests.TransitionRequest(ctx, req.ID, model.RequestPending, model.RequestExpired); err != nil {
			r.logger.Warn().Err(err).Uint("request_id", req.ID).Msg("lazy expiry failed")
		}
		return nil, apperror.Expired("request has expired")
	}

	if req.Status != model.RequestPending {
		return nil, apperror.Conflict("request is no longer pending")
	}

	// Create the conversation first; the guarded accept below is the
	// commit point, so a request is never accepted without one. The
	// unique request_id index stops a concurrent double create.
	conv := conversationFromRequest(req)
	first := &model.Message{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Type:        model.MessageText,
		Content:     req.InitialMessage,
		Status:      model.StatusSent,
	}
	if err := r.stores.Conversations.CreateConversation(ctx, conv, first); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("request is no longer pending")
		}
		return nil, apperror.Wrap(apperror.CodeInternal, "creating conversation", err)
	}

	ok, err := r.stores.Requests.AcceptRequest(ctx, req.ID, conv.ID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "accepting request", err)
	}
	if !ok {
		// Lost the race to a concurrent transition; unwind the
		// conversation we just created.
		conv.Status = model.ConversationDeleted
		if serr := r.stores.Conversations.SaveConversation(ctx, conv); serr != nil {
			r.logger.Warn().Err(serr).Uint("conversation_id", conv.ID).Msg("orphan conversation cleanup failed")
		}
		return nil, apperror.Conflict("request is no longer pending")
	}

	r.bus.Publish(event.UserRoom(req.SenderID), event.NewEnvelope(event.RequestAccepted, conv))
	r.dispatcher.Notify([]uint{req.SenderID}, event.RequestAccepted, map[string]any{
		"conversation_id": conv.ID,
	})
	return conv, nil
}

// conversationFromRequest builds the two-party aggregate. The
// recipient is always revealed; the initiator starts hidden only for
// anonymous requests. The opening message is an unrevealed-initiator
// send, so it seeds the counter.
func conversationFromRequest(req *model.MessageRequest) *model.Conversation {
	initiatorCount := 0
	if req.IsAnonymous {
		initiatorCount = 1
	}
	return &model.Conversation{
		RequestID:             req.ID,
		InitiatorID:           req.SenderID,
		RecipientID:           req.RecipientID,
		Status:                model.ConversationActive,
		IsAnonymous:           req.IsAnonymous,
		InitiatorMessageCount: initiatorCount,
		Participants: []model.Participant{
			{UserID: req.SenderID, Role: model.RoleInitiator, IsRevealed: !req.IsAnonymous},
			{UserID: req.RecipientID, Role: model.RoleRecipient, IsRevealed: true},
		},
	}
}

func (r *RequestRegistry) Reject(ctx context.Context, requestID, byUserID uint) error {
	return r.terminate(ctx, requestID, byUserID, false)
}

func (r *RequestRegistry) Cancel(ctx context.Context, requestID, byUserID uint) error {
	return r.terminate(ctx, requestID, byUserID, true)
}

func (r *RequestRegistry) terminate(ctx context.Context, requestID, byUserID uint, bySender bool) error {
	req, err := r.stores.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return requestErr(err)
	}

	target := model.RequestRejected
	if bySender {
		target = model.RequestCancelled
		if req.SenderID != byUserID {
			return apperror.Forbidden("only the sender can cancel a request")
		}
	} else if req.RecipientID != byUserID {
		return apperror.Forbidden("only the recipient can reject a request")
	}

	ok, err := r.stores.Requests.TransitionRequest(ctx, req.ID, model.RequestPending, target)
	if err != nil {
		return apperror.Wrap(apperror.CodeInternal, "updating request", err)
	}
	if !ok {
		return apperror.Conflict("request is no longer pending")
	}
	return nil
}

// Get returns a request visible to the caller, expiring it lazily when
// its deadline has passed.
func (r *RequestRegistry) Get(ctx context.Context, requestID, byUserID uint) (*model.MessageRequest, error) {
	req, err := r.stores.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, requestErr(err)
	}
	if req.SenderID != byUserID && req.RecipientID != byUserID {
		return nil, apperror.Forbidden("not your request")
	}
	return r.lazyExpire(ctx, req), nil
}

func (r *RequestRegistry) ListInbox(ctx context.Context, userID uint) ([]model.MessageRequest, error) {
	reqs, err := r.stores.Requests.ListInbox(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "listing inbox", err)
	}
	return r.lazyExpireAll(ctx, reqs), nil
}

func (r *RequestRegistry) ListOutbox(ctx context.Context, userID uint) ([]model.MessageRequest, error) {
	reqs, err := r.stores.Requests.ListOutbox(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "listing outbox", err)
	}
	return r.lazyExpireAll(ctx, reqs), nil
}

func (r *RequestRegistry) lazyExpire(ctx context.Context, req *model.MessageRequest) *model.MessageRequest {
	if !req.LapsedAt(r.now()) {
		return req
	}
	if _, err := r.stores.Requests.TransitionRequest(ctx, req.ID, model.RequestPending, model.RequestExpired); err != nil {
		r.logger.Warn().Err(err).Uint("request_id", req.ID).Msg("lazy expiry failed")
		return req
	}
	req.Status = model.RequestExpired
	return req
}

func (r *RequestRegistry) lazyExpireAll(ctx context.Context, reqs []model.MessageRequest) []model.MessageRequest {
	for i := range reqs {
		reqs[i] = *r.lazyExpire(ctx, &reqs[i])
	}
	return reqs
}

func userErr(err error, who string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperror.NotFound(who + " not found")
	}
	return apperror.Wrap(apperror.CodeInternal, "loading "+who, err)
}

func requestErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperror.NotFound("request not found")
	}
	return apperror.Wrap(apperror.CodeInternal, "loading request", err)
}
