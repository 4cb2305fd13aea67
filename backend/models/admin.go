package models

import (
	"time"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a dashboard account
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:80;unique;not null" json:"name"`
	Role      string     `gorm:"size:20;not null" json:"role"`
	Password  string     `gorm:"size:120;not null" json:"-"` // Stored hashed
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}
