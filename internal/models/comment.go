package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment is a reply on a thing. Replies nest at most one level deep:
// a comment with a ParentID can never itself be a parent.
type Comment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ThingID   uint           `gorm:"not null;index" json:"thingId"`
	AuthorID  uint           `gorm:"not null;index" json:"authorId"`
	Author    *User          `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
	ParentID  *uint          `gorm:"index" json:"parentId"`
	Body      string         `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
