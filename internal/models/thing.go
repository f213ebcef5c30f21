package models

import (
	"time"

	"gorm.io/gorm"
)

// ThingStatus is the publication state of a user submission.
type ThingStatus string

const (
	ThingStatusPending   ThingStatus = "pending"
	ThingStatusPublished ThingStatus = "published"
	ThingStatusRemoved   ThingStatus = "removed"
)

// Valid reports whether s is a known status.
func (s ThingStatus) Valid() bool {
	switch s {
	case ThingStatusPending, ThingStatusPublished, ThingStatusRemoved:
		return true
	}
	return false
}

// Thing is a user-submitted post attached to a park and a category.
type Thing struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ParkID     uint           `gorm:"not null;index" json:"parkId"`
	Park       *Park          `gorm:"foreignKey:ParkID;constraint:OnDelete:CASCADE" json:"park,omitempty"`
	CategoryID uint           `gorm:"not null;index" json:"categoryId"`
	Category   *Category      `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"category,omitempty"`
	AuthorID   uint           `gorm:"not null;index" json:"authorId"`
	Author     *User          `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
	Title      string         `gorm:"type:text;not null" json:"title"`
	Body       string         `gorm:"type:text;not null" json:"body"`
	Status     ThingStatus    `gorm:"type:text;not null;default:pending" json:"status"`
	Images     []ThingImage   `gorm:"foreignKey:ThingID" json:"images,omitempty"`
	Votes      *VoteTally     `gorm:"-" json:"votes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// ThingImage is an externally stored image attached to a thing.
type ThingImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ThingID   uint      `gorm:"not null;index" json:"thingId"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	Alt       *string   `gorm:"type:text" json:"alt,omitempty"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
