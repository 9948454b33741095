package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/userdata-registry/internal/model"
)

var columns = []string{"id", "registrationid", "type", "name", "email", "phone", "created_at", "updated_at"}

type MySQLStoreSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *MySQLStore
	ctx   context.Context
	clock time.Time
}

func TestMySQLStoreSuite(t *testing.T) {
	suite.Run(t, new(MySQLStoreSuite))
}

func (s *MySQLStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db = db
	s.mock = mock
	s.store = NewMySQLStore(db)
	s.clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *MySQLStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *MySQLStoreSuite) record() *model.UserData {
	return &model.UserData{
		RegistrationID: "TX-001",
		Type:           "taco",
		Name:           "Al's Tacos",
		Email:          "al@example.com",
		Phone:          "555-0100",
	}
}

func (s *MySQLStoreSuite) TestCreate() {
	s.Run("populates id and timestamps", func() {
		s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO userdata")).
			WithArgs("TX-001", "taco", "Al's Tacos", "al@example.com", "555-0100", s.clock, s.clock).
			WillReturnResult(sqlmock.NewResult(7, 1))

		d := s.record()
		s.Require().NoError(s.store.Create(s.ctx, d))
		s.Equal(uint64(7), d.ID)
		s.Equal(s.clock, d.CreatedAt)
		s.Equal(s.clock, d.UpdatedAt)
	})

	s.Run("duplicate key maps to ErrConflict", func() {
		s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO userdata")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'TX-001'"})

		s.ErrorIs(s.store.Create(s.ctx, s.record()), ErrConflict)
	})

	s.Run("other errors pass through", func() {
		boom := errors.New("connection reset")
		s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO userdata")).WillReturnError(boom)

		err := s.store.Create(s.ctx, s.record())
		s.ErrorIs(err, boom)
		s.NotErrorIs(err, ErrConflict)
	})
}

func (s *MySQLStoreSuite) TestGetByRegistrationID() {
	s.Run("returns the matching row", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta("FROM userdata WHERE registrationid = ?")).
			WithArgs("TX-001").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, "TX-001", "taco", "Al's Tacos", "al@example.com", "555-0100", s.clock, s.clock))

		d, err := s.store.GetByRegistrationID(s.ctx, "TX-001")
		s.Require().NoError(err)
		s.Equal(uint64(1), d.ID)
		s.Equal("al@example.com", d.Email)
	})

	s.Run("no rows maps to ErrNotFound", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta("FROM userdata WHERE registrationid = ?")).
			WithArgs("ZZ-999").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := s.store.GetByRegistrationID(s.ctx, "ZZ-999")
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *MySQLStoreSuite) TestList() {
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM userdata ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "A", "taco", "A", "a@example.com", "1", s.clock, s.clock).
			AddRow(2, "B", "volunteer", "B", "b@example.com", "2", s.clock, s.clock))

	items, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal("A", items[0].RegistrationID)
	s.Equal("B", items[1].RegistrationID)
}

func (s *MySQLStoreSuite) TestUpdate() {
	created := s.clock.Add(-time.Hour)

	s.Run("bumps updated_at past the stored value", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(regexp.QuoteMeta("SELECT created_at, updated_at FROM userdata WHERE id = ? FOR UPDATE")).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, s.clock))
		s.mock.ExpectExec(regexp.QuoteMeta("UPDATE userdata")).
			WithArgs("TX-001", "taco", "Al's Tacos", "al@example.com", "555-0100", s.clock.Add(time.Microsecond), 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectCommit()

		d := s.record()
		d.ID = 3
		s.Require().NoError(s.store.Update(s.ctx, d))
		s.Equal(created, d.CreatedAt)
		s.Equal(s.clock.Add(time.Microsecond), d.UpdatedAt)
	})

	s.Run("missing row maps to ErrNotFound", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))
		s.mock.ExpectRollback()

		d := s.record()
		d.ID = 4
		s.ErrorIs(s.store.Update(s.ctx, d), ErrNotFound)
	})

	s.Run("duplicate key rolls back with ErrConflict", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))
		s.mock.ExpectExec(regexp.QuoteMeta("UPDATE userdata")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
		s.mock.ExpectRollback()

		d := s.record()
		d.ID = 5
		s.ErrorIs(s.store.Update(s.ctx, d), ErrConflict)
	})
}

func (s *MySQLStoreSuite) TestDelete() {
	s.Run("returns the removed row", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(regexp.QuoteMeta("FROM userdata WHERE id = ? FOR UPDATE")).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, "TX-001", "taco", "Al's Tacos", "al@example.com", "555-0100", s.clock, s.clock))
		s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM userdata WHERE id = ?")).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectCommit()

		d, err := s.store.Delete(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal("TX-001", d.RegistrationID)
	})

	s.Run("missing row maps to ErrNotFound", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows(columns))
		s.mock.ExpectRollback()

		_, err := s.store.Delete(s.ctx, 1)
		s.ErrorIs(err, ErrNotFound)
	})
}

func TestIsDuplicate(t *testing.T) {
	require.True(t, isDuplicate(&mysql.MySQLError{Number: 1062}))
	require.False(t, isDuplicate(&mysql.MySQLError{Number: 1213}))
	require.True(t, isDuplicate(fmt.Errorf("insert userdata: %w", &mysql.MySQLError{Number: 1062})))
	require.False(t, isDuplicate(errors.New("Error 1062 (23000): Duplicate entry")))
	require.False(t, isDuplicate(errors.New("row 1062 failed checksum")))
	require.False(t, isDuplicate(errors.New("deadlock")))
}
