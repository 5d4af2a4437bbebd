package model

// Relational lists the tables managed by AutoMigrate. The similarity index
// table is provisioned separately because its vector dimension is configurable.
func Relational() []interface{} {
	return []interface{}{
		&User{},
		&Conversation{},
		&Message{},
	}
}
