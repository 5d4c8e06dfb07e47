// internal/models/officer.go
package models

// Officer is a reviewer read from the officer registry. The core never
// writes officers; it only selects among the active ones.
type Officer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId"`
	Role       string `json:"role"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Active     bool   `json:"active"`
}
