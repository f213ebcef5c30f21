package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alexdfirestone/national-parks/internal/cms"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yml
var fixturesYAML []byte

// ParkFixture is a park as listed in fixtures.yml.
type ParkFixture struct {
	Name    string   `yaml:"name"`
	Slug    string   `yaml:"slug"`
	States  []string `yaml:"states"`
	Summary string   `yaml:"summary"`
	Lat     float64  `yaml:"lat"`
	Lng     float64  `yaml:"lng"`
}

// CategoryFixture is a category as listed in fixtures.yml.
type CategoryFixture struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

// Fixtures is the built-in reference content.
type Fixtures struct {
	Parks      []ParkFixture     `yaml:"parks"`
	Categories []CategoryFixture `yaml:"categories"`
}

// LoadFixtures decodes the embedded fixtures.
func LoadFixtures() (*Fixtures, error) {
	return ParseFixtures(fixturesYAML)
}

// ParseFixtures decodes fixtures from YAML and rejects blank or duplicate slugs.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	seen := make(map[string]bool)
	for _, p := range fx.Parks {
		if p.Slug == "" || p.Name == "" {
			return nil, fmt.Errorf("park fixture %q: name and slug are required", p.Name)
		}
		if seen["park:"+p.Slug] {
			return nil, fmt.Errorf("duplicate park slug %q", p.Slug)
		}
		seen["park:"+p.Slug] = true
	}
	for _, c := range fx.Categories {
		if c.Slug == "" || c.Name == "" {
			return nil, fmt.Errorf("category fixture %q: name and slug are required", c.Name)
		}
		if seen["category:"+c.Slug] {
			return nil, fmt.Errorf("duplicate category slug %q", c.Slug)
		}
		seen["category:"+c.Slug] = true
	}
	return &fx, nil
}

// ParkDocumentID is the stable CMS id of a seeded park.
func ParkDocumentID(slug string) string { return "park-" + slug }

// CategoryDocumentID is the stable CMS id of a seeded category.
func CategoryDocumentID(slug string) string { return "category-" + slug }

// Document renders the fixture as the CMS document the webhook would deliver.
func (p ParkFixture) Document() cms.ParkDocument {
	lat := json.Number(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	lng := json.Number(strconv.FormatFloat(p.Lng, 'f', -1, 64))
	doc := cms.ParkDocument{
		ID:     ParkDocumentID(p.Slug),
		Type:   cms.TypePark,
		Name:   p.Name,
		Slug:   &cms.Slug{Type: "slug", Current: p.Slug},
		States: p.States,
		Lat:    &lat,
		Lng:    &lng,
	}
	if p.Summary != "" {
		doc.Summary = cms.PortableText{{
			Type:     "block",
			Key:      "summary",
			Style:    "normal",
			Children: []cms.Span{{Type: "span", Key: "summary-text", Text: p.Summary, Marks: []string{}}},
		}}
	}
	return doc
}

// Document renders the fixture as a CMS category document.
func (c CategoryFixture) Document() cms.CategoryDocument {
	return cms.CategoryDocument{
		ID:   CategoryDocumentID(c.Slug),
		Type: cms.TypeCategory,
		Name: c.Name,
		Slug: &cms.Slug{Type: "slug", Current: c.Slug},
	}
}
