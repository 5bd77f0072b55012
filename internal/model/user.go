package model

// User is an account row from the accounts database. Only the fields this
// service reads are mapped.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
}
