package store

import (
	"context"
	"database/sql"
	"fmt"

	"seminarhub/internal/config"
)

// Migrate creates the schema if it does not exist. Identity columns are
// auto-generated; foreign keys mirror the reference relationships of the
// domain model, with enrollment rows owned by their schedule.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == config.DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS admins (
			admin_id %s,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name TEXT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS seminars (
			seminar_id %s,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS educationalinstitutions (
			institution_id %s,
			name TEXT NOT NULL,
			address TEXT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS participants (
			participant_id %s,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			gender TEXT NOT NULL CHECK (gender IN ('female', 'male', 'other')),
			birth_date TIMESTAMP NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS seminarschedules (
			schedule_id %s,
			datetime_begins TIMESTAMP NOT NULL,
			datetime_ends TIMESTAMP NOT NULL,
			created_by_admin_id BIGINT NOT NULL REFERENCES admins(admin_id),
			seminar_id BIGINT NOT NULL REFERENCES seminars(seminar_id),
			institution_id BIGINT NOT NULL REFERENCES educationalinstitutions(institution_id)
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS seminarenrollments (
			enrollment_id %s,
			schedule_id BIGINT NOT NULL REFERENCES seminarschedules(schedule_id),
			participant_id BIGINT NOT NULL REFERENCES participants(participant_id),
			attended BOOLEAN NOT NULL DEFAULT FALSE,
			grade INTEGER NOT NULL DEFAULT 0,
			UNIQUE (schedule_id, participant_id)
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_schedules_seminar ON seminarschedules(seminar_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_institution ON seminarschedules(institution_id)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_schedule ON seminarenrollments(schedule_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
