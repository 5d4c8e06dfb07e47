// internal/models/application.go
package models

import "time"

// Application is a professional-license application moving through the
// approval ladder. At most one officer owns it at a time; CurrentOfficerID
// is nil while it is unassigned.
type Application struct {
	ID               string     `json:"id"`
	ApplicantID      string     `json:"applicantId"`
	LicenseType      string     `json:"licenseType"`
	Status           string     `json:"status"`
	CurrentOfficerID *string    `json:"currentOfficerId,omitempty"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}
