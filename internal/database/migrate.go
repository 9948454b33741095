package database

import (
	"context"
	"database/sql"
	"fmt"
)

// userDataSchema creates the userdata table.  registrationid uses a binary
// collation so lookups and the unique index are case-sensitive.
const userDataSchema = `
CREATE TABLE IF NOT EXISTS userdata (
	id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	registrationid VARCHAR(100) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
	type           VARCHAR(50)  NOT NULL,
	name           VARCHAR(100) NOT NULL,
	email          VARCHAR(254) NOT NULL,
	phone          VARCHAR(20)  NOT NULL,
	created_at     DATETIME(6)  NOT NULL,
	updated_at     DATETIME(6)  NOT NULL,
	PRIMARY KEY (id),
	UNIQUE KEY uq_userdata_registrationid (registrationid)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, userDataSchema); err != nil {
		return fmt.Errorf("create userdata table: %w", err)
	}
	return nil
}
