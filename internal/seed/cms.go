package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/middleware"
)

// Mutator applies CMS mutations. *cms.Client satisfies it.
type Mutator interface {
	Mutate(ctx context.Context, mutations ...cms.Mutation) (*cms.MutateResult, error)
}

const defaultCMSBatchSize = 20

// CMSResult counts the documents written to the CMS.
type CMSResult struct {
	Parks      int
	Categories int
}

// SeedCMS writes every fixture to the CMS with createOrReplace, so reruns
// overwrite the same documents. Categories go first.
func SeedCMS(ctx context.Context, m Mutator, fx *Fixtures, batchSize int) (CMSResult, error) {
	if batchSize <= 0 {
		batchSize = defaultCMSBatchSize
	}
	log := middleware.Logger.With(slog.String("component", "seed_cms"))

	categories := make([]cms.Mutation, 0, len(fx.Categories))
	for _, c := range fx.Categories {
		categories = append(categories, cms.Mutation{CreateOrReplace: c.Document()})
	}
	parks := make([]cms.Mutation, 0, len(fx.Parks))
	for _, p := range fx.Parks {
		parks = append(parks, cms.Mutation{CreateOrReplace: p.Document()})
	}

	var res CMSResult
	n, err := mutateInBatches(ctx, m, categories, batchSize)
	res.Categories = n
	if err != nil {
		return res, fmt.Errorf("seed categories: %w", err)
	}
	log.InfoContext(ctx, "categories written", slog.Int("count", n))

	n, err = mutateInBatches(ctx, m, parks, batchSize)
	res.Parks = n
	if err != nil {
		return res, fmt.Errorf("seed parks: %w", err)
	}
	log.InfoContext(ctx, "parks written", slog.Int("count", n))
	return res, nil
}

func mutateInBatches(ctx context.Context, m Mutator, mutations []cms.Mutation, size int) (int, error) {
	written := 0
	for start := 0; start < len(mutations); start += size {
		end := min(start+size, len(mutations))
		if _, err := m.Mutate(ctx, mutations[start:end]...); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}
