// Package memory backs the store interfaces with maps. It mirrors the
// postgres package's semantics closely enough to drive the service
// tests, including the guarded conditional updates.
package memory

import (
	"sync"
	"time"

	"whisper-service/model"
	"whisper-service/store"
)

type Store struct {
	mu sync.RWMutex

	nextUserID    uint
	nextRequestID uint
	nextConvID    uint
	nextPartID    uint
	nextMsgID     uint
	nextOrderID   uint
	nextPackID    uint

	users         map[uint]model.User
	blocks        []model.UserBlock
	requests      map[uint]model.MessageRequest
	conversations map[uint]model.Conversation
	messages      map[uint]model.Message
	msgOrder      []uint
	orders        map[uint]model.PaymentOrder
	packs         map[uint]model.RequestPack
}

func New() *Store {
	return &Store{
		users:         make(map[uint]model.User),
		requests:      make(map[uint]model.MessageRequest),
		conversations: make(map[uint]model.Conversation),
		messages:      make(map[uint]model.Message),
		orders:        make(map[uint]model.PaymentOrder),
		packs:         make(map[uint]model.RequestPack),
	}
}

func (s *Store) Stores() store.Stores {
	return store.Stores{
		Users:         s,
		Requests:      s,
		Conversations: s,
		Messages:      s,
		Payments:      s,
		Packs:         s,
	}
}

// AddUser seeds a user and returns its id. Test helper.
func (s *Store) AddUser(u model.User) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u.ID = s.nextUserID
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	return u.ID
}

// AddBlock seeds a block row. Test helper.
func (s *Store) AddBlock(blocker, blocked uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, model.UserBlock{BlockerID: blocker, BlockedID: blocked})
}
