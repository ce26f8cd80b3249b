// Package postgres implements the store interfaces on GORM.
package postgres

import (
	"errors"

	"gorm.io/gorm"

	"whisper-service/store"
)

// Store carries the shared *gorm.DB; one value implements every store
// interface.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Stores returns the bundle wired to this database handle.
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

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	}
	return err
}
