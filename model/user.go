package model

import "gorm.io/gorm"

// User struct
type User struct {
	gorm.Model
	Username  string `gorm:"uniqueIndex;not null" json:"username"`
	College   string `json:"college"`
	Workplace string `json:"workplace"`
	City      string `json:"city"`

	// Message-request preferences. All false means anyone may send a
	// request; any true restriction admits senders matching it (OR).
	AcceptFromCollege   bool `gorm:"not null;default:false" json:"accept_from_college"`
	AcceptFromWorkplace bool `gorm:"not null;default:false" json:"accept_from_workplace"`
	AcceptFromCity      bool `gorm:"not null;default:false" json:"accept_from_city"`
}

// UserBlock marks that Blocker has blocked Blocked. A block in either
// direction forbids new requests between the pair.
type UserBlock struct {
	gorm.Model
	BlockerID uint `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocker_id"`
	BlockedID uint `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocked_id"`
}

// AcceptsRequestFrom reports whether the recipient's preference filter
// admits the sender. Restrictions combine with OR semantics: satisfying
// any one enabled restriction is enough.
func (u *User) AcceptsRequestFrom(sender *User) bool {
	if !u.AcceptFromCollege && !u.AcceptFromWorkplace && !u.AcceptFromCity {
		return true
	}
	if u.AcceptFromCollege && u.College != "" && u.College == sender.College {
		return true
	}
	if u.AcceptFromWorkplace && u.Workplace != "" && u.Workplace == sender.Workplace {
		return true
	}
	if u.AcceptFromCity && u.City != "" && u.City == sender.City {
		return true
	}
	return false
}
