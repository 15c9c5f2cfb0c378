// package models contains the persistent types of the server.
package models

// AllTables returns the models AutoMigrate should manage.
func AllTables() []any {
	return []any{
		&Instance{},
		&Actor{},
		&Account{},
		&Activity{},
		&Post{},
		&PostTag{},
		&Notification{},
		&Reaction{},
		&Relationship{},
		&DomainAllow{},
		&DomainBlock{},
		&ActorBlock{},
		&ActorRefreshRequest{},
		&DeliveryRequest{},
	}
}
