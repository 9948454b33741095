// Package repository contains data access logic separated from HTTP handlers.
// This file implements UserDataStore on top of MySQL.  Uniqueness of the
// registration id is delegated to the table's unique index; every write is
// a single statement or a short transaction so no partial writes occur.
package repository

import (
	"context"      // context carries request cancellation into DB calls
	"database/sql" // sql provides generic database operations and drivers
	"errors"       // errors is used to unwrap driver errors
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/userdata-registry/internal/model"
)

// mysqlDuplicateEntry is the MySQL error number for a unique key violation.
const mysqlDuplicateEntry = 1062

const userDataColumns = "id, registrationid, type, name, email, phone, created_at, updated_at"

// MySQLStore encapsulates all database queries related to userdata.  It
// depends on a sql.DB connection which should be configured elsewhere.
type MySQLStore struct {
	db  *sql.DB          // db is the underlying database connection pool
	now func() time.Time // now is the clock used for timestamps
}

// NewMySQLStore constructs a MySQLStore with the provided DB handle.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserData(r rowScanner) (*model.UserData, error) {
	d := new(model.UserData)
	if err := r.Scan(&d.ID, &d.RegistrationID, &d.Type, &d.Name, &d.Email, &d.Phone, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

// List returns all records ordered by id, which is insertion order.
func (s *MySQLStore) List(ctx context.Context) ([]*model.UserData, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userDataColumns+" FROM userdata ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UserData
	for rows.Next() {
		d, err := scanUserData(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a new record.  On success d.ID, d.CreatedAt and
// d.UpdatedAt are populated.  ErrConflict is returned when the
// registration id is already taken.
func (s *MySQLStore) Create(ctx context.Context, d *model.UserData) error {
	const q = `INSERT INTO userdata (registrationid, type, name, email, phone, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := s.now().UTC().Truncate(time.Microsecond)
	res, err := s.db.ExecContext(ctx, q, d.RegistrationID, d.Type, d.Name, d.Email, d.Phone, now, now)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

// GetByID fetches a record by its internal id.  It returns ErrNotFound if
// no row is found.
func (s *MySQLStore) GetByID(ctx context.Context, id uint64) (*model.UserData, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userDataColumns+" FROM userdata WHERE id = ?", id)
	d, err := scanUserData(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetByRegistrationID fetches a record by its registration id.  The column
// uses a binary collation so the comparison is case-sensitive.
func (s *MySQLStore) GetByRegistrationID(ctx context.Context, registrationID string) (*model.UserData, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userDataColumns+" FROM userdata WHERE registrationid = ? LIMIT 1", registrationID)
	d, err := scanUserData(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// Update replaces the writable fields of the record identified by d.ID.
// The row is locked while the new updated_at is computed so concurrent
// updates still produce strictly increasing timestamps.
func (s *MySQLStore) Update(ctx context.Context, d *model.UserData) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var createdAt, prevUpdated time.Time
	if err = tx.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM userdata WHERE id = ? FOR UPDATE", d.ID).
		Scan(&createdAt, &prevUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return err
	}

	updatedAt := nextTimestamp(prevUpdated, s.now())
	const q = `UPDATE userdata
	           SET registrationid = ?, type = ?, name = ?, email = ?, phone = ?, updated_at = ?
	           WHERE id = ?`
	if _, err = tx.ExecContext(ctx, q, d.RegistrationID, d.Type, d.Name, d.Email, d.Phone, updatedAt, d.ID); err != nil {
		if isDuplicate(err) {
			err = ErrConflict
		}
		return err
	}
	d.CreatedAt = createdAt.UTC()
	d.UpdatedAt = updatedAt
	return nil
}

// Delete removes the record with the given id and returns the removed row.
// A second delete of the same id returns ErrNotFound.
func (s *MySQLStore) Delete(ctx context.Context, id uint64) (d *model.UserData, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	d, err = scanUserData(tx.QueryRowContext(ctx, "SELECT "+userDataColumns+" FROM userdata WHERE id = ? FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM userdata WHERE id = ?", id); err != nil {
		return nil, err
	}
	return d, nil
}
