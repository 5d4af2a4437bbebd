package specification

import (
	"strings"

	"gorm.io/gorm"
)

// ByEmail matches the stored address exactly, ignoring surrounding whitespace.
type ByEmail struct {
	Email string
}

func (s ByEmail) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("email = ?", strings.TrimSpace(s.Email))
}
