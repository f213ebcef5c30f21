// Package models contains the domain types persisted in the content store.
package models

import "time"

// Park mirrors a park document from the CMS. The CMS is the source of truth
// for every column; rows are written only by the sync reconciler.
type Park struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CMSID     string    `gorm:"column:cms_id;uniqueIndex;not null" json:"cmsId"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	Name      string    `gorm:"not null" json:"name"`
	States    []string  `gorm:"serializer:json;type:jsonb" json:"states"`
	Summary   *string   `gorm:"type:text" json:"summary"`
	HeroURL   *string   `gorm:"column:hero_url;type:text" json:"heroUrl"`
	Lat       *string   `gorm:"type:numeric(9,6)" json:"lat"`
	Lng       *string   `gorm:"type:numeric(9,6)" json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Category mirrors a category document from the CMS.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CMSID     *string   `gorm:"column:cms_id;uniqueIndex" json:"cmsId,omitempty"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	Name      string    `gorm:"not null" json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}
