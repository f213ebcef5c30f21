package seed

import (
	"fmt"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

var thingOpeners = []string{
	"Best spot for", "Don't miss", "Early morning", "Hidden gem:", "Worth the climb:",
	"Sunset at", "Quiet corner for", "Family friendly", "Off the beaten path:",
}

// Factory builds demo users, things and comments. It never touches the
// database; the Seeder persists what it builds.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory returns a Factory. A zero seed picks a random one.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// Caller builds a demo identity.
func (f *Factory) Caller() models.Caller {
	username := strings.ToLower(f.faker.Username())
	return models.Caller{
		ProviderID:  fmt.Sprintf("seed-%s-%d", username, f.faker.Number(100, 999)),
		DisplayName: f.faker.Name(),
		Roles:       []string{models.RoleUser},
	}
}

// Thing builds a published submission for park and category.
func (f *Factory) Thing(park *models.Park, category *models.Category, author *models.User) *models.Thing {
	opener := f.faker.RandomString(thingOpeners)
	return &models.Thing{
		ParkID:     park.ID,
		CategoryID: category.ID,
		AuthorID:   author.ID,
		Title:      fmt.Sprintf("%s %s in %s", opener, strings.ToLower(category.Name), park.Name),
		Body:       f.faker.Paragraph(1, 3, 12, " "),
		Status:     models.ThingStatusPublished,
	}
}

// Comment builds a comment on thing. A non-nil parent makes it a reply.
func (f *Factory) Comment(thing *models.Thing, author *models.User, parent *models.Comment) *models.Comment {
	c := &models.Comment{
		ThingID:  thing.ID,
		AuthorID: author.ID,
		Body:     f.faker.Sentence(f.faker.Number(6, 16)),
	}
	if parent != nil {
		id := parent.ID
		c.ParentID = &id
	}
	return c
}

// VoteValue returns +1 about three times out of four.
func (f *Factory) VoteValue() int16 {
	if f.faker.Number(1, 4) == 1 {
		return -1
	}
	return 1
}

// Pick returns an index in [0, n).
func (f *Factory) Pick(n int) int {
	return f.faker.Number(0, n-1)
}

// Chance reports true with probability pct/100.
func (f *Factory) Chance(pct int) bool {
	return f.faker.Number(1, 100) <= pct
}
