package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"seminarhub/pkg/domain"
)

// ErrNotFound reports a lookup for an identity with no matching row.
var ErrNotFound = errors.New("entity not found")

// Result counts the row operations a persist call issued, so callers (and
// tests) can observe exactly which statements ran.
type Result struct {
	Inserted int
	Updated  int
	Deleted  int
}

// Empty reports whether the persist call issued no statements at all.
func (r Result) Empty() bool {
	return r.Inserted == 0 && r.Updated == 0 && r.Deleted == 0
}

// querier is the subset of *sql.DB and *sql.Tx the engine statements need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Engine drives generic INSERT/UPDATE/DELETE statements off the entity
// contract, one transaction per persist call. In-memory lifecycle tags and
// identities are committed to the objects only after the transaction commits,
// so a rollback leaves callers free to retry or discard.
type Engine struct {
	db  *sql.DB
	d   dialect
	log *zap.Logger
}

// NewEngine wraps an open store connection for the given driver.
func NewEngine(db *sql.DB, driver string, log *zap.Logger) *Engine {
	return &Engine{db: db, d: dialect(driver), log: log}
}

// Persist writes a single entity according to its lifecycle tag. An unchanged
// entity is a no-op; inserted entities get their generated identity read back
// and become unchanged, updated entities become unchanged, deleted entities
// have their row removed.
func (e *Engine) Persist(ctx context.Context, ent domain.Entity) (Result, error) {
	var res Result
	if ent.State() == domain.StateUnchanged {
		return res, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var newID int64
	switch ent.State() {
	case domain.StateInserted:
		newID, err = e.insert(ctx, tx, ent)
		res.Inserted++
	case domain.StateUpdated:
		err = e.update(ctx, tx, ent)
		res.Updated++
	case domain.StateDeleted:
		err = e.delete(ctx, tx, ent)
		res.Deleted++
	}
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit: %w", err)
	}

	switch ent.State() {
	case domain.StateInserted:
		ent.SetID(newID)
		fallthrough
	case domain.StateUpdated:
		if err := ent.SetState(domain.StateUnchanged); err != nil {
			return res, err
		}
	}

	e.log.Debug("entity persisted",
		zap.String("table", ent.Table()),
		zap.Int64("id", ent.ID()),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
	)
	return res, nil
}

func (e *Engine) insert(ctx context.Context, q querier, ent domain.Entity) (int64, error) {
	cols := ent.Columns()
	vals := ent.Values()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ent.Table(), strings.Join(cols, ", "), marks)

	if e.d.supportsReturning() {
		query = e.d.rebind(query + " RETURNING " + ent.IDColumn())
		var id int64
		if err := q.QueryRowContext(ctx, query, vals...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", ent.Table(), err)
		}
		return id, nil
	}

	res, err := q.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", ent.Table(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read generated identity for %s: %w", ent.Table(), err)
	}
	return id, nil
}

func (e *Engine) update(ctx context.Context, q querier, ent domain.Entity) error {
	cols, args := ent.UpdateAssignments()
	assigns := make([]string, len(cols))
	for i, col := range cols {
		assigns[i] = col + " = ?"
	}
	query := e.d.rebind(fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		ent.Table(), strings.Join(assigns, ", "), ent.IDColumn()))
	args = append(args, ent.ID())
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", ent.Table(), err)
	}
	return nil
}

func (e *Engine) delete(ctx context.Context, q querier, ent domain.Entity) error {
	query := e.d.rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", ent.Table(), ent.IDColumn()))
	if _, err := q.ExecContext(ctx, query, ent.ID()); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", ent.Table(), err)
	}
	return nil
}

// SelectAll runs the prototype's canonical listing query and parses each row
// through the entity contract.
func (e *Engine) SelectAll(ctx context.Context, prototype domain.Entity) ([]domain.Entity, error) {
	rows, err := e.db.QueryContext(ctx, prototype.SelectAllQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prototype.Table(), err)
	}
	defer func() { _ = rows.Close() }()

	var entities []domain.Entity
	for rows.Next() {
		ent, err := prototype.FromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", prototype.Table(), err)
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", prototype.Table(), err)
	}
	return entities, nil
}

// likeEscaper neutralizes LIKE wildcards in user-supplied search input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchParticipants matches the needle against first and last names with a
// parametrized, wildcard-escaped LIKE filter. Client input never reaches the
// statement text.
func (e *Engine) SearchParticipants(ctx context.Context, needle string) ([]*domain.Participant, error) {
	pattern := "%" + likeEscaper.Replace(needle) + "%"
	query := e.d.rebind(`SELECT participant_id, first_name, last_name, gender, birth_date
		FROM participants
		WHERE first_name LIKE ? ESCAPE '\' OR last_name LIKE ? ESCAPE '\'
		ORDER BY last_name, first_name`)

	rows, err := e.db.QueryContext(ctx, query, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	prototype := &domain.Participant{}
	var participants []*domain.Participant
	for rows.Next() {
		ent, err := prototype.FromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, ent.(*domain.Participant))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

// AdminByUsername loads a full admin record for credential checks.
func (e *Engine) AdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	query := e.d.rebind(`SELECT admin_id, username, password_hash, display_name
		FROM admins WHERE username = ?`)
	admin := &domain.Admin{}
	err := e.db.QueryRowContext(ctx, query, username).Scan(
		&admin.AdminID, &admin.Username, &admin.PasswordHash, &admin.DisplayName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin %q: %w", username, err)
	}
	return admin, nil
}

// GetSchedule loads one schedule with its owned enrollments hydrated and a
// snapshot taken, ready for later diffing.
func (e *Engine) GetSchedule(ctx context.Context, id int64) (*domain.SeminarSchedule, error) {
	prototype := &domain.SeminarSchedule{}
	row := e.db.QueryRowContext(ctx, e.d.rebind(prototype.SelectByIDQuery()), id)
	ent, err := prototype.FromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %d: %w", id, err)
	}
	schedule := ent.(*domain.SeminarSchedule)

	enrollments, err := e.loadEnrollments(ctx, e.db, id)
	if err != nil {
		return nil, err
	}
	schedule.Enrollments = enrollments
	schedule.SnapshotEnrollments()
	return schedule, nil
}

func (e *Engine) loadEnrollments(ctx context.Context, q querier, scheduleID int64) ([]*domain.SeminarEnrollment, error) {
	prototype := &domain.SeminarEnrollment{}
	rows, err := q.QueryContext(ctx, e.d.rebind(prototype.SelectByScheduleQuery()), scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments for schedule %d: %w", scheduleID, err)
	}
	defer func() { _ = rows.Close() }()

	var enrollments []*domain.SeminarEnrollment
	for rows.Next() {
		ent, err := prototype.FromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		enrollments = append(enrollments, ent.(*domain.SeminarEnrollment))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}
	return enrollments, nil
}

// enrollmentDiff is the outcome of comparing the current owned collection
// against the last-known-persisted one.
type enrollmentDiff struct {
	inserts []*domain.SeminarEnrollment
	updates []*domain.SeminarEnrollment
	deletes []*domain.SeminarEnrollment
}

// diffEnrollments matches enrollments by participant: present only now means
// insert, present in both with changed fields means update, present only in
// the baseline means delete. Unchanged pairs produce no operation.
func diffEnrollments(current, baseline []*domain.SeminarEnrollment) enrollmentDiff {
	var diff enrollmentDiff
	baselineByParticipant := make(map[int64]*domain.SeminarEnrollment, len(baseline))
	for _, en := range baseline {
		baselineByParticipant[en.Participant.ParticipantID] = en
	}

	for _, en := range current {
		persisted, ok := baselineByParticipant[en.Participant.ParticipantID]
		if !ok {
			diff.inserts = append(diff.inserts, en)
			continue
		}
		delete(baselineByParticipant, en.Participant.ParticipantID)
		if !en.Equal(persisted) {
			// Carry the persisted identity so the UPDATE targets the row.
			en.EnrollmentID = persisted.EnrollmentID
			diff.updates = append(diff.updates, en)
		} else {
			en.EnrollmentID = persisted.EnrollmentID
		}
	}
	for _, persisted := range baselineByParticipant {
		diff.deletes = append(diff.deletes, persisted)
	}
	return diff
}

// PersistSchedule writes the aggregate: the schedule row plus the diffed
// owned enrollment collection, all inside one transaction. The baseline for
// the diff is the in-memory snapshot when one exists, otherwise the persisted
// collection fetched inside the transaction. On rollback no in-memory state
// has been touched.
func (e *Engine) PersistSchedule(ctx context.Context, s *domain.SeminarSchedule) (Result, error) {
	var res Result

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var scheduleID = s.ScheduleID
	var insertedIDs map[*domain.SeminarEnrollment]int64

	switch s.State() {
	case domain.StateInserted:
		// The schedule row goes first: enrollment rows need its identity.
		scheduleID, err = e.insert(ctx, tx, s)
		if err != nil {
			return Result{}, err
		}
		res.Inserted++
		insertedIDs = make(map[*domain.SeminarEnrollment]int64, len(s.Enrollments))
		for _, en := range s.Enrollments {
			en.ScheduleID = scheduleID
			id, err := e.insert(ctx, tx, en)
			if err != nil {
				return Result{}, err
			}
			insertedIDs[en] = id
			res.Inserted++
		}

	case domain.StateDeleted:
		// Cascade: owned rows first, then the root.
		delAll := e.d.rebind(`DELETE FROM seminarenrollments WHERE schedule_id = ?`)
		dres, err := tx.ExecContext(ctx, delAll, s.ScheduleID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to delete enrollments for schedule %d: %w", s.ScheduleID, err)
		}
		if n, err := dres.RowsAffected(); err == nil {
			res.Deleted += int(n)
		}
		if err := e.delete(ctx, tx, s); err != nil {
			return Result{}, err
		}
		res.Deleted++

	case domain.StateUnchanged, domain.StateUpdated:
		baseline := s.OriginalEnrollments()
		if baseline == nil {
			baseline, err = e.loadEnrollments(ctx, tx, s.ScheduleID)
			if err != nil {
				return Result{}, err
			}
		}

		// The scalar row is written only when it actually differs from the
		// persisted one, independent of enrollment edits.
		persisted, err := e.scheduleScalars(ctx, tx, s.ScheduleID)
		if err != nil {
			return Result{}, err
		}
		if !s.EqualScalars(persisted) {
			if err := e.update(ctx, tx, s); err != nil {
				return Result{}, err
			}
			res.Updated++
		}

		diff := diffEnrollments(s.Enrollments, baseline)
		insertedIDs = make(map[*domain.SeminarEnrollment]int64, len(diff.inserts))
		for _, en := range diff.inserts {
			en.ScheduleID = s.ScheduleID
			id, err := e.insert(ctx, tx, en)
			if err != nil {
				return Result{}, err
			}
			insertedIDs[en] = id
			res.Inserted++
		}
		for _, en := range diff.updates {
			if err := e.update(ctx, tx, en); err != nil {
				return Result{}, err
			}
			res.Updated++
		}
		for _, en := range diff.deletes {
			if err := e.delete(ctx, tx, en); err != nil {
				return Result{}, err
			}
			res.Deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit: %w", err)
	}

	// Only now, with the transaction durable, do identities and lifecycle
	// tags flow back into the aggregate.
	if s.State() != domain.StateDeleted {
		s.SetID(scheduleID)
		for en, id := range insertedIDs {
			en.SetID(id)
		}
		if err := s.SetState(domain.StateUnchanged); err != nil {
			return res, err
		}
		for _, en := range s.Enrollments {
			en.ScheduleID = scheduleID
			if en.State() != domain.StateUnchanged {
				if err := en.SetState(domain.StateUnchanged); err != nil {
					return res, err
				}
			}
		}
		s.SnapshotEnrollments()
	}

	e.log.Info("schedule persisted",
		zap.Int64("schedule_id", scheduleID),
		zap.String("state", s.State().String()),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
	)
	return res, nil
}

// scheduleScalars fetches the persisted scalar fields of a schedule inside
// the running transaction, for the EqualScalars comparison.
func (e *Engine) scheduleScalars(ctx context.Context, q querier, id int64) (*domain.SeminarSchedule, error) {
	query := e.d.rebind(`SELECT schedule_id, datetime_begins, datetime_ends, seminar_id, institution_id
		FROM seminarschedules WHERE schedule_id = ?`)
	s := &domain.SeminarSchedule{
		Seminar:     &domain.Seminar{},
		Institution: &domain.EducationalInstitution{},
	}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&s.ScheduleID, &s.Begins, &s.Ends,
		&s.Seminar.SeminarID, &s.Institution.InstitutionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %d: %w", id, err)
	}
	return s, nil
}
