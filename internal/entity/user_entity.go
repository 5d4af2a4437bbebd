package entity

import "time"

type User struct {
	Id           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
