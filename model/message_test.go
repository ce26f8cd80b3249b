package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestDeliveryStatusBefore(t *testing.T) {
	assert.True(t, StatusSent.Before(StatusDelivered))
	assert.True(t, StatusSent.Before(StatusRead))
	assert.True(t, StatusDelivered.Before(StatusRead))

	assert.False(t, StatusDelivered.Before(StatusSent), "status never regresses")
	assert.False(t, StatusRead.Before(StatusDelivered))
	assert.False(t, StatusRead.Before(StatusRead))

	// An ack proves the recipient has the message after all.
	assert.True(t, StatusFailed.Before(StatusDelivered), "acks recover failed messages")
	assert.True(t, StatusFailed.Before(StatusRead))
	assert.False(t, StatusFailed.Before(StatusSent))
	assert.False(t, StatusDelivered.Before(StatusFailed), "delivered never regresses to failed")
}

func TestVisibleTo(t *testing.T) {
	now := time.Now()
	msg := func() *Message { return &Message{SenderID: 1, RecipientID: 2} }

	m := msg()
	assert.True(t, m.VisibleTo(1))
	assert.True(t, m.VisibleTo(2))

	m = msg()
	m.DeletedBySender = true
	assert.False(t, m.VisibleTo(1))
	assert.True(t, m.VisibleTo(2), "per-user delete never affects the other side")

	m = msg()
	m.DeletedByRecipient = true
	assert.True(t, m.VisibleTo(1))
	assert.False(t, m.VisibleTo(2))

	m = msg()
	m.DeletedForEveryoneAt = &now
	assert.False(t, m.VisibleTo(1))
	assert.False(t, m.VisibleTo(2))
}

func TestEditable(t *testing.T) {
	now := time.Now()
	window := 15 * time.Minute
	fresh := &Message{
		Model:    gorm.Model{CreatedAt: now.Add(-time.Minute)},
		SenderID: 1, RecipientID: 2, Type: MessageText,
	}

	assert.True(t, fresh.Editable(1, now, window))
	assert.False(t, fresh.Editable(2, now, window), "only the sender edits")

	stale := &Message{
		Model:    gorm.Model{CreatedAt: now.Add(-time.Hour)},
		SenderID: 1, Type: MessageText,
	}
	assert.False(t, stale.Editable(1, now, window), "edit window is time-boxed")

	system := &Message{
		Model:    gorm.Model{CreatedAt: now},
		SenderID: 1, Type: MessageSystem,
	}
	assert.False(t, system.Editable(1, now, window))
}

func TestAcceptsRequestFrom(t *testing.T) {
	sender := &User{College: "IIT Delhi", Workplace: "Acme", City: "Delhi"}

	open := &User{}
	assert.True(t, open.AcceptsRequestFrom(sender), "no restrictions admits anyone")

	collegeOnly := &User{College: "IIT Delhi", AcceptFromCollege: true}
	assert.True(t, collegeOnly.AcceptsRequestFrom(sender))

	otherCollege := &User{College: "IIT Bombay", AcceptFromCollege: true}
	assert.False(t, otherCollege.AcceptsRequestFrom(sender))

	// OR semantics: a city match admits even though college mismatches.
	cityOrCollege := &User{
		College: "IIT Bombay", City: "Delhi",
		AcceptFromCollege: true, AcceptFromCity: true,
	}
	assert.True(t, cityOrCollege.AcceptsRequestFrom(sender))

	emptyField := &User{AcceptFromWorkplace: true}
	assert.False(t, emptyField.AcceptsRequestFrom(&User{}), "empty values never match")
}
