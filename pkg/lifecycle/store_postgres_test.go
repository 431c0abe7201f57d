package lifecycle

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresTransitionLocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	record := &TrainingRecord{ID: "rec-1", Status: StatusValidated}
	body, _ := json.Marshal(record)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT body FROM training_records WHERE id = $1 FOR UPDATE`)).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE training_records SET status = $2, body = $3 WHERE id = $1`)).
		WithArgs("rec-1", string(StatusApprovedForTraining), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPostgresStoreFromDB(db)
	updated, err := store.Transition(context.Background(), "rec-1", func(r *TrainingRecord) error {
		r.Status = StatusApprovedForTraining
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusApprovedForTraining, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionRollsBackOnFnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	record := &TrainingRecord{ID: "rec-1", Status: StatusRejected}
	body, _ := json.Marshal(record)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT body FROM training_records WHERE id = $1 FOR UPDATE`)).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	mock.ExpectRollback()

	store := NewPostgresStoreFromDB(db)
	_, err = store.Transition(context.Background(), "rec-1", func(r *TrainingRecord) error {
		if !CanTransition(r.Status, StatusAnonymizing) {
			return ErrRecordNotFound // any error aborts the tx
		}
		return nil
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionMissingRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT body FROM training_records WHERE id = $1 FOR UPDATE`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectRollback()

	store := NewPostgresStoreFromDB(db)
	_, err = store.Transition(context.Background(), "missing", func(r *TrainingRecord) error { return nil })
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAndGetRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	record := &TrainingRecord{ID: "rec-1", Status: StatusPendingReview, Source: "edgar"}
	body, _ := json.Marshal(record)

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO training_records (id, status, body) VALUES ($1, $2, $3)`)).
		WithArgs("rec-1", string(StatusPendingReview), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT body FROM training_records WHERE id = $1`)).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	store := NewPostgresStoreFromDB(db)
	require.NoError(t, store.CreateRecord(context.Background(), record))
	got, err := store.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Equal(t, "edgar", got.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}
