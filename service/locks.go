package service

import "sync"

const lockShards = 64

// ConversationLocks serializes check-then-act sequences per
// conversation. Both the send path and payment application take the
// same lock so counters and paid cycles can never race each other.
// Sharded: two conversations may map to one mutex, which only costs a
// little contention, never correctness.
type ConversationLocks struct {
	shards [lockShards]sync.Mutex
}

func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{}
}

func (l *ConversationLocks) For(conversationID uint) *sync.Mutex {
	return &l.shards[conversationID%lockShards]
}
