package model

import "time"

type User struct {
	Id           string    `gorm:"type:varchar(32);primaryKey"`
	FirstName    string    `gorm:"type:varchar(255);not null;default:''"`
	LastName     string    `gorm:"type:varchar(255);not null;default:''"`
	Email        string    `gorm:"type:varchar(320);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Verified     bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
