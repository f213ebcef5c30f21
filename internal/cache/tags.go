package cache

import (
	"fmt"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// Target types accepted by TagsFor.
const (
	TargetPark     = "park"
	TargetCategory = "category"
	TargetThing    = "thing"
)

// Collection tags.
const (
	TagParks      = "parks"
	TagCategories = "categories"
	TagNav        = "nav"
)

// Target names the content whose cached reads must be invalidated.
// Park and category targets need Slug; thing targets need ID and may carry
// the owning park's Slug.
type Target struct {
	Type string
	Slug string
	ID   uint
}

func ParkTag(slug string) string       { return "park:" + slug }
func ParkThingsTag(slug string) string { return "park:" + slug + ":things" }
func CategoryTag(slug string) string   { return "category:" + slug }
func ThingTag(id uint) string          { return fmt.Sprintf("thing:%d", id) }
func ThingVotesTag(id uint) string     { return fmt.Sprintf("thing:%d:votes", id) }
func ThingCommentsTag(id uint) string  { return fmt.Sprintf("thing:%d:comments", id) }

// TagsFor returns the complete set of tags affected by a change to t.
// A missing identifier or unknown type is a validation error.
func TagsFor(t Target) ([]string, error) {
	slug := strings.TrimSpace(t.Slug)

	switch t.Type {
	case TargetPark:
		if slug == "" {
			return nil, models.NewValidationError("slug is required for type park")
		}
		return []string{ParkTag(slug), ParkThingsTag(slug), TagParks, TagNav}, nil
	case TargetCategory:
		if slug == "" {
			return nil, models.NewValidationError("slug is required for type category")
		}
		return []string{CategoryTag(slug), TagCategories, TagNav}, nil
	case TargetThing:
		if t.ID == 0 {
			return nil, models.NewValidationError("id is required for type thing")
		}
		tags := []string{ThingTag(t.ID), ThingVotesTag(t.ID), ThingCommentsTag(t.ID)}
		if slug != "" {
			tags = append(tags, ParkThingsTag(slug))
		}
		return tags, nil
	case "":
		return nil, models.NewValidationError("_type is required")
	default:
		return nil, models.NewValidationError(fmt.Sprintf("unknown type %q", t.Type))
	}
}

func tagSetKey(tag string) string {
	return "tag:" + tag
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
