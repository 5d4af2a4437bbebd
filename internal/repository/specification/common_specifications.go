package specification

import (
	"fmt"

	"gorm.io/gorm"
)

// ByID filters by primary key. Accepts string user ids and uuid ids alike.
type ByID struct {
	ID interface{}
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// OrderBy applies ordering
type OrderBy struct {
	Field string
	Desc  bool
}

func (s OrderBy) Apply(db *gorm.DB) *gorm.DB {
	direction := "ASC"
	if s.Desc {
		direction = "DESC"
	}
	return db.Order(fmt.Sprintf("%s %s", s.Field, direction))
}

type Limit struct {
	Value int
}

func (s Limit) Apply(db *gorm.DB) *gorm.DB {
	return db.Limit(s.Value)
}
