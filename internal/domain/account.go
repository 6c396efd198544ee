package domain

import "time"

type Role string

const (
	RoleCustomer     Role = "customer"
	RoleTradesperson Role = "tradesperson"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleTradesperson, RoleAdmin:
		return true
	default:
		return false
	}
}

// Account is a registered identity. Exactly one exists per subject and per email.
type Account struct {
	ID      AccountID
	Subject SubjectID

	DisplayName string
	// Email is stored lower-cased; uniqueness is case-insensitive.
	Email string
	Role  Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Account) IsTradesperson() bool { return a.Role == RoleTradesperson }
