package models

import "time"

type Feedback struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"size:128;not null;index"`
	Rating        int       `json:"rating" gorm:"not null"`
	ReviewComment string    `json:"review_comment" gorm:"size:2000"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Feedback) TableName() string { return "feedback" }
