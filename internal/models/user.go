package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a directory entry. Guest users are inert contact records created
// to satisfy the registration's user reference; they carry no credentials.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           string    `bun:"id,pk"`
	Email        string    `bun:"email,unique,notnull"`
	FullName     string    `bun:"full_name,notnull"`
	Phone        string    `bun:"phone"`
	Organization string    `bun:"organization"`
	IsGuest      bool      `bun:"is_guest"`
	IsActive     bool      `bun:"is_active"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}
