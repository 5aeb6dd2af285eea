package models

import (
	"time"
)

// Message is a single anonymous drop. Key is the only handle the sender
// ever receives; it doubles as the lookup token for replies.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	Key       string    `gorm:"uniqueIndex;size:16;not null" json:"key"`
	Body      string    `gorm:"not null" json:"message"`
	Replied   bool      `gorm:"not null;default:false" json:"replied"`
	Public    bool      `gorm:"not null;default:false" json:"public"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Reply     *Reply    `gorm:"foreignKey:MessageKey;references:Key" json:"reply,omitempty"`
}

// Reply belongs to exactly one Message. MessageKey carries a unique index
// so storing a second reply replaces the first instead of accumulating.
type Reply struct {
	ID         uint      `gorm:"primarykey" json:"-"`
	MessageKey string    `gorm:"uniqueIndex;size:16;not null" json:"-"`
	Body       string    `gorm:"not null" json:"reply"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"-"`
}
