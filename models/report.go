package models

import (
	"time"
)

// ReportStatus is the lifecycle state of a citizen report
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusVerified ReportStatus = "verified"
	ReportStatusApproved ReportStatus = "approved"
	ReportStatusRejected ReportStatus = "rejected"
)

// Resolved reports that a validator already acted on a report.
// Approved and rejected are terminal for the validation workflow.
func (s ReportStatus) Resolved() bool {
	return s == ReportStatusApproved || s == ReportStatusRejected
}

// Report is a citizen-submitted air-quality observation.
// Only the ingestion pipeline moves a report out of pending;
// only the validation service moves it out of verified.
type Report struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserName string `gorm:"size:80;index" json:"username"`

	Description string `gorm:"type:text" json:"description"`
	ImageURL    string `gorm:"type:text" json:"image_url,omitempty"`
	ImageHash   string `gorm:"size:64;index" json:"-"`

	Lat float64 `gorm:"not null" json:"lat"`
	Lng float64 `gorm:"not null" json:"lng"`

	AQI    float64      `json:"aqi,omitempty"`
	Points int          `gorm:"default:0" json:"points"`
	Status ReportStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	PollutionConfidence        float64 `json:"pollution_confidence,omitempty"`
	DescriptionMatchConfidence float64 `json:"description_match_confidence,omitempty"`

	// Set only when a government validator resolves the report
	Precautions string `gorm:"type:text" json:"precautions,omitempty"`
	ActionTaken string `gorm:"type:text" json:"action_taken,omitempty"`
	ValidatedBy string `gorm:"size:120" json:"validated_by,omitempty"`

	AwardedCredits int `gorm:"default:0" json:"awarded_credits"`

	CreatedAt     time.Time `json:"created_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}
