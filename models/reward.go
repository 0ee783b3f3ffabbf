package models

import "time"

// RewardApproval is one operator-issued reward grant.
// UserID is the contributor's username: usernames are the stable
// reward key in this system, there is no separate numeric user id.
// Repeated grants for the same user create repeated records.
type RewardApproval struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"size:80;not null;index" json:"user_id"`
	RewardType  string    `gorm:"size:120;not null" json:"reward_type"`
	RewardValue int       `gorm:"not null" json:"reward_value"`
	ApprovedBy  string    `gorm:"size:120" json:"approved_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
