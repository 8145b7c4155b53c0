package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/store"
)

func setupStoreMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	s := NewSQLStore(db)
	cleanup := func() { db.Close() }
	return s, mock, cleanup
}

const selectValue = `SELECT value FROM secure_items WHERE key = $1`

func TestGet_Found(t *testing.T) {
	s, mock, cleanup := setupStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
		WithArgs(models.PinKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("123456"))

	v, ok, err := s.Get(context.Background(), models.PinKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != "123456" {
		t.Errorf("Get = %q, %v; want %q, true", v, ok, "123456")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGet_Missing(t *testing.T) {
	s, mock, cleanup := setupStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
		WithArgs(models.PinKey).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Get(context.Background(), models.PinKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected key to be absent")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGet_Error(t *testing.T) {
	s, mock, cleanup := setupStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
		WithArgs(models.PinKey).
		WillReturnError(errors.New("connection reset"))

	_, _, err := s.Get(context.Background(), models.PinKey)
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "get" || se.Key != models.PinKey {
		t.Errorf("StorageError = %+v", se)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSet_Upsert(t *testing.T) {
	s, mock, cleanup := setupStoreMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO secure_items (key, value, updated_at)`)).
		WithArgs(models.RetryAttemptsKey, "2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Set(context.Background(), models.RetryAttemptsKey, "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSet_Error(t *testing.T) {
	s, mock, cleanup := setupStoreMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO secure_items`)).
		WithArgs(models.PinKey, "123456", sqlmock.AnyArg()).
		WillReturnError(errors.New("read-only"))

	err := s.Set(context.Background(), models.PinKey, "123456")
	var se *store.StorageError
	if !errors.As(err, &se) || se.Op != "set" {
		t.Fatalf("expected set StorageError, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s, mock, cleanup := setupStoreMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secure_items WHERE key = $1`)).
		WithArgs(models.LockoutKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), models.LockoutKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClearExpiredLockout(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	cases := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		want    bool
		wantErr bool
	}{
		{
			name: "no lockout",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
					WithArgs(models.LockoutKey).
					WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
		},
		{
			name: "still locked",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
					WithArgs(models.LockoutKey).
					WillReturnRows(sqlmock.NewRows([]string{"value"}).
						AddRow(strconv.FormatInt(now.Add(time.Minute).UnixMilli(), 10)))
				mock.ExpectRollback()
			},
		},
		{
			name: "expired",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
					WithArgs(models.LockoutKey).
					WillReturnRows(sqlmock.NewRows([]string{"value"}).
						AddRow(strconv.FormatInt(now.Add(-time.Second).UnixMilli(), 10)))
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secure_items WHERE key = $1`)).
					WithArgs(models.LockoutKey).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secure_items WHERE key = $1`)).
					WithArgs(models.RetryAttemptsKey).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			want: true,
		},
		{
			name: "delete fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
					WithArgs(models.LockoutKey).
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("garbage"))
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secure_items WHERE key = $1`)).
					WithArgs(models.LockoutKey).
					WillReturnError(errors.New("locked table"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock, cleanup := setupStoreMock(t)
			defer cleanup()
			tc.setup(mock)

			got, err := s.ClearExpiredLockout(context.Background(), now)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ClearExpiredLockout error = %v; wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ClearExpiredLockout = %v; want %v", got, tc.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
