package models

import "time"

// User is a hosting customer.
type User struct {
	ID            string
	FirstName     string
	LastName      string
	AuthToken     string
	Email         string
	Username      string
	Active        bool
	MemberSince   time.Time
	LastTOSSigned time.Time
	Applications  []Application
}

// FullName is "<first> <last>".
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserSummary is a user row with the number of applications it owns.
type UserSummary struct {
	User
	AppCount int
}
