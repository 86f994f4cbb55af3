// Package domain contains core domain types for the Virtual Doctor application.
package domain

import (
	"time"
)

// Account roles offered by the signup form.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// User is a registered account. PasswordHash is a bcrypt hash; the clear-text
// password is never stored.
type User struct {
	ID             string    `json:"id"`
	Role           string    `json:"role"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Gender         string    `json:"gender"`
	Phone          string    `json:"phone"`
	DateOfBirth    time.Time `json:"dob"`
	Insurance      string    `json:"insurance,omitempty"`
	MedicalHistory string    `json:"medical_history,omitempty"`
	License        string    `json:"license,omitempty"`
	Specialty      string    `json:"specialty,omitempty"`
	Hospital       string    `json:"hospital,omitempty"`
	AdminCode      string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsValidRole reports whether role is one of the known account roles.
func IsValidRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}
