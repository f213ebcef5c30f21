package models

import "time"

// FlagStatus is the lifecycle state of a moderation flag.
type FlagStatus string

const (
	FlagOpen   FlagStatus = "open"
	FlagClosed FlagStatus = "closed"
)

// ModerationFlag is a report against a thing or comment.
type ModerationFlag struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	SubjectType SubjectType `gorm:"type:text;not null;index:moderation_flags_subject_idx" json:"subjectType"`
	SubjectID   uint        `gorm:"not null;index:moderation_flags_subject_idx" json:"subjectId"`
	Reason      string      `gorm:"type:text;not null" json:"reason"`
	ReporterID  *uint       `gorm:"index" json:"reporterId,omitempty"`
	ResolvedBy  *uint       `json:"resolvedBy,omitempty"`
	Status      FlagStatus  `gorm:"type:text;not null;default:open;index" json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	ResolvedAt  *time.Time  `json:"resolvedAt,omitempty"`
}
