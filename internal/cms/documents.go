package cms

import (
	"bytes"
	"encoding/json"
)

// Document types mirrored into the content store.
const (
	TypePark     = "park"
	TypeCategory = "category"
)

// Envelope is the part of every document needed to route it.
type Envelope struct {
	ID   string `json:"_id"`
	Type string `json:"_type"`
}

// Slug is the CMS slug object.
type Slug struct {
	Type    string `json:"_type,omitempty"`
	Current string `json:"current"`
}

// Span is an inline run of text inside a block.
type Span struct {
	Type  string   `json:"_type"`
	Key   string   `json:"_key,omitempty"`
	Text  string   `json:"text"`
	Marks []string `json:"marks,omitempty"`
}

// Block is one paragraph of portable text.
type Block struct {
	Type     string            `json:"_type"`
	Key      string            `json:"_key,omitempty"`
	Style    string            `json:"style,omitempty"`
	Children []Span            `json:"children,omitempty"`
	MarkDefs []json.RawMessage `json:"markDefs,omitempty"`
}

// PortableText is a rich-text field. Values that are not an array decode as
// empty so a malformed summary never blocks a sync.
type PortableText []Block

// UnmarshalJSON implements json.Unmarshaler.
func (p *PortableText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		*p = nil
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		*p = nil
		return nil
	}
	*p = blocks
	return nil
}

// AssetRef references an uploaded asset.
type AssetRef struct {
	Ref  string `json:"_ref"`
	Type string `json:"_type,omitempty"`
}

// Image is an image field.
type Image struct {
	Type  string    `json:"_type,omitempty"`
	Asset *AssetRef `json:"asset,omitempty"`
	Alt   string    `json:"alt,omitempty"`
}

// ParkDocument is a park as returned by the CMS or delivered by the webhook.
type ParkDocument struct {
	ID        string       `json:"_id"`
	Type      string       `json:"_type,omitempty"`
	Name      string       `json:"name,omitempty"`
	Slug      *Slug        `json:"slug,omitempty"`
	States    []string     `json:"states,omitempty"`
	Summary   PortableText `json:"summary,omitempty"`
	HeroImage *Image       `json:"heroImage,omitempty"`
	Lat       *json.Number `json:"lat,omitempty"`
	Lng       *json.Number `json:"lng,omitempty"`
}

// SlugValue returns slug.current or "".
func (d *ParkDocument) SlugValue() string {
	if d.Slug == nil {
		return ""
	}
	return d.Slug.Current
}

// CategoryDocument is a category as returned by the CMS or delivered by the webhook.
type CategoryDocument struct {
	ID   string `json:"_id"`
	Type string `json:"_type,omitempty"`
	Name string `json:"name,omitempty"`
	Slug *Slug  `json:"slug,omitempty"`
}

// SlugValue returns slug.current or "".
func (d *CategoryDocument) SlugValue() string {
	if d.Slug == nil {
		return ""
	}
	return d.Slug.Current
}

const parkProjection = `{_id, _type, name, slug, states, summary, heroImage, lat, lng}`

const categoryProjection = `{_id, _type, name, slug}`

// GROQ queries used by the sync paths.
const (
	QueryAllParks      = `*[_type == "park"] | order(name asc) ` + parkProjection
	QueryAllCategories = `*[_type == "category"] | order(name asc) ` + categoryProjection
	QueryParkByID      = `*[_type == "park" && _id == $id][0] ` + parkProjection
	QueryCategoryByID  = `*[_type == "category" && _id == $id][0] ` + categoryProjection
)
