package models

import "time"

// SubjectType identifies what a vote or moderation flag targets.
type SubjectType string

const (
	SubjectThing   SubjectType = "thing"
	SubjectComment SubjectType = "comment"
)

// Valid reports whether t is a known subject type.
func (t SubjectType) Valid() bool {
	return t == SubjectThing || t == SubjectComment
}

// Vote is one user's +1/-1 on a subject. (user_id, subject_type, subject_id)
// is unique; repeat votes overwrite Value.
type Vote struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      uint        `gorm:"not null;uniqueIndex:votes_user_subject_unique" json:"userId"`
	SubjectType SubjectType `gorm:"type:text;not null;uniqueIndex:votes_user_subject_unique;index:votes_subject_idx" json:"subjectType"`
	SubjectID   uint        `gorm:"not null;uniqueIndex:votes_user_subject_unique;index:votes_subject_idx" json:"subjectId"`
	Value       int16       `gorm:"type:smallint;not null;check:value IN (-1, 1)" json:"value"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// VoteTally aggregates the votes on a subject.
type VoteTally struct {
	Total     int `json:"total"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}
