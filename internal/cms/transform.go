package cms

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// ErrMissingFields marks a document that lacks slug.current or name.
var ErrMissingFields = errors.New("document is missing slug or name")

var imageRefPattern = regexp.MustCompile(`^image-([a-f0-9]+)-(\d+x\d+)-(\w+)$`)

// Transformer derives content store rows from CMS documents.
type Transformer struct {
	ProjectID string
	Dataset   string
}

// Park maps a park document onto a row. The returned row carries no ID.
func (t Transformer) Park(doc ParkDocument) (models.Park, error) {
	slug := strings.TrimSpace(doc.SlugValue())
	name := strings.TrimSpace(doc.Name)
	if slug == "" || name == "" {
		return models.Park{}, ErrMissingFields
	}

	states := doc.States
	if states == nil {
		states = []string{}
	}

	park := models.Park{
		CMSID:   doc.ID,
		Slug:    slug,
		Name:    name,
		States:  states,
		Summary: PlainText(doc.Summary),
		Lat:     FormatCoordinate(doc.Lat),
		Lng:     FormatCoordinate(doc.Lng),
	}
	if doc.HeroImage != nil && doc.HeroImage.Asset != nil {
		if url, ok := HeroImageURL(doc.HeroImage.Asset.Ref, t.ProjectID, t.Dataset); ok {
			park.HeroURL = &url
		}
	}
	return park, nil
}

// Category maps a category document onto a row.
func (t Transformer) Category(doc CategoryDocument) (models.Category, error) {
	slug := strings.TrimSpace(doc.SlugValue())
	name := strings.TrimSpace(doc.Name)
	if slug == "" || name == "" {
		return models.Category{}, ErrMissingFields
	}
	category := models.Category{Slug: slug, Name: name}
	if doc.ID != "" {
		id := doc.ID
		category.CMSID = &id
	}
	return category, nil
}

// PlainText flattens portable text. Spans inside a block are concatenated
// and blocks are separated by a blank line. A nil value yields nil.
func PlainText(blocks PortableText) *string {
	if blocks == nil {
		return nil
	}
	paragraphs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type != "block" {
			continue
		}
		var sb strings.Builder
		for _, child := range block.Children {
			if child.Type == "span" {
				sb.WriteString(child.Text)
			}
		}
		paragraphs = append(paragraphs, sb.String())
	}
	text := strings.Join(paragraphs, "\n\n")
	return &text
}

// HeroImageURL turns an asset reference such as
// image-abc123-1200x800-jpg into its CDN URL.
func HeroImageURL(ref, projectID, dataset string) (string, bool) {
	m := imageRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("https://cdn.sanity.io/images/%s/%s/%s-%s.%s", projectID, dataset, m[1], m[2], m[3]), true
}

// FormatCoordinate renders a coordinate as a decimal string.
func FormatCoordinate(n *json.Number) *string {
	if n == nil || n.String() == "" {
		return nil
	}
	if _, err := n.Float64(); err != nil {
		return nil
	}
	s := n.String()
	return &s
}
