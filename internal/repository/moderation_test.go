package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdfirestone/national-parks/internal/models"
)

func TestModerationRepository_Create_DefaultsOpen(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewModerationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "moderation_flags"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	flag := &models.ModerationFlag{SubjectType: models.SubjectThing, SubjectID: 42, Reason: "spam"}
	require.NoError(t, repo.Create(context.Background(), flag))
	assert.Equal(t, models.FlagOpen, flag.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModerationRepository_List(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewModerationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "moderation_flags" WHERE status = $1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs("open", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_type", "subject_id", "reason", "status"}).
			AddRow(1, "thing", 42, "spam", "open"))

	flags, err := repo.List(context.Background(), models.FlagOpen, 0)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, models.SubjectThing, flags[0].SubjectType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const selectFlag = `SELECT * FROM "moderation_flags" WHERE "moderation_flags"."id" = $1`

func flagRow(status string, subjectType models.SubjectType, subjectID uint) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "subject_type", "subject_id", "status"}).
		AddRow(1, string(subjectType), subjectID, status)
}

func TestModerationRepository_Resolve_AlreadyClosed(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewModerationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectFlag)).
		WithArgs(1, 1).
		WillReturnRows(flagRow("closed", models.SubjectThing, 42))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "moderation_flags" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), 1, 9, Resolution{ThingStatus: models.ThingStatusRemoved})
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModerationRepository_Resolve_RemovesThing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewModerationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectFlag)).
		WithArgs(1, 1).
		WillReturnRows(flagRow("open", models.SubjectThing, 42))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "moderation_flags" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "things" SET "status"=$1`)).
		WithArgs(models.ThingStatusRemoved, sqlmock.AnyArg(), 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(selectFlag)).
		WithArgs(1, 1).
		WillReturnRows(flagRow("closed", models.SubjectThing, 42))

	flag, err := repo.Resolve(context.Background(), 1, 9, Resolution{ThingStatus: models.ThingStatusRemoved})
	require.NoError(t, err)
	assert.Equal(t, models.FlagClosed, flag.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModerationRepository_Resolve_MissingThingKeepsFlagOpen(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewModerationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectFlag)).
		WithArgs(1, 1).
		WillReturnRows(flagRow("open", models.SubjectThing, 42))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "moderation_flags" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "things" SET "status"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), 1, 9, Resolution{ThingStatus: models.ThingStatusRemoved})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModerationRepository_Resolve_SoftDeletesComment(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewModerationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectFlag)).
		WithArgs(1, 1).
		WillReturnRows(flagRow("open", models.SubjectComment, 3))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "moderation_flags" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments" SET "deleted_at"=$1 WHERE "comments"."id" = $2 AND "comments"."deleted_at" IS NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(selectFlag)).
		WithArgs(1, 1).
		WillReturnRows(flagRow("closed", models.SubjectComment, 3))

	_, err := repo.Resolve(context.Background(), 1, 9, Resolution{DeleteComment: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
