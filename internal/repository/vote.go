package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// VoteRepository persists votes and computes tallies.
type VoteRepository interface {
	Upsert(ctx context.Context, vote *models.Vote) error
	Tally(ctx context.Context, subjectType models.SubjectType, subjectID uint) (models.VoteTally, error)
	Tallies(ctx context.Context, subjectType models.SubjectType, subjectIDs []uint) (map[uint]models.VoteTally, error)
}

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository returns a new VoteRepository implementation.
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

// Upsert records vote in a single statement; a repeat vote by the same user
// on the same subject overwrites the value.
func (r *voteRepository) Upsert(ctx context.Context, vote *models.Vote) error {
	if vote.Value != 1 && vote.Value != -1 {
		return models.NewValidationError("Vote value must be 1 or -1")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "subject_type"},
			{Name: "subject_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      vote.Value,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(vote).Error
	if err != nil {
		return classify("Vote", err)
	}
	return nil
}

const tallySelect = `COALESCE(SUM(value), 0) AS total,
	COALESCE(SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END), 0) AS upvotes,
	COALESCE(SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END), 0) AS downvotes`

func (r *voteRepository) Tally(ctx context.Context, subjectType models.SubjectType, subjectID uint) (models.VoteTally, error) {
	var tally models.VoteTally
	err := r.db.WithContext(ctx).
		Raw(`SELECT `+tallySelect+` FROM votes WHERE subject_type = ? AND subject_id = ?`, subjectType, subjectID).
		Scan(&tally).Error
	if err != nil {
		return models.VoteTally{}, models.NewInternalError(err)
	}
	return tally, nil
}

type tallyRow struct {
	SubjectID uint
	Total     int
	Upvotes   int
	Downvotes int
}

// Tallies computes tallies for many subjects in one query. Subjects without
// votes are present with a zero tally.
func (r *voteRepository) Tallies(ctx context.Context, subjectType models.SubjectType, subjectIDs []uint) (map[uint]models.VoteTally, error) {
	out := make(map[uint]models.VoteTally, len(subjectIDs))
	if len(subjectIDs) == 0 {
		return out, nil
	}
	for _, id := range subjectIDs {
		out[id] = models.VoteTally{}
	}

	var rows []tallyRow
	err := r.db.WithContext(ctx).
		Raw(`SELECT subject_id, `+tallySelect+` FROM votes WHERE subject_type = ? AND subject_id IN ? GROUP BY subject_id`, subjectType, subjectIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range rows {
		out[row.SubjectID] = models.VoteTally{Total: row.Total, Upvotes: row.Upvotes, Downvotes: row.Downvotes}
	}
	return out, nil
}
