package models

import (
	"time"
)

// CacheSnapshot stores the serialized contents of one named cache
type CacheSnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	Payload   []byte    `json:"-" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}
