package domain

import (
	"time"
)

// SeminarSchedule is the aggregate root: a seminar scheduled at an
// institution for a time window, owning an ordered collection of enrollments.
// CreatedBy, Seminar and Institution are skeletal references; the enrollments
// are exclusively owned and follow the schedule's lifecycle.
type SeminarSchedule struct {
	Lifecycle
	ScheduleID  int64                   `json:"scheduleId"`
	Begins      time.Time               `json:"datetimeBegins"`
	Ends        time.Time               `json:"datetimeEnds"`
	CreatedBy   *Admin                  `json:"createdBy,omitempty"`
	Seminar     *Seminar                `json:"seminar"`
	Institution *EducationalInstitution `json:"institution"`
	Enrollments []*SeminarEnrollment    `json:"enrollments"`

	// snapshot holds the last-known-persisted enrollments for diffing.
	snapshot []*SeminarEnrollment
}

// NewSeminarSchedule creates a schedule in the inserted state.
func NewSeminarSchedule(begins, ends time.Time, createdBy *Admin, seminar *Seminar, institution *EducationalInstitution) (*SeminarSchedule, error) {
	s := &SeminarSchedule{Lifecycle: Lifecycle{Tag: StateInserted}}
	if err := s.SetPeriod(begins, ends); err != nil {
		return nil, err
	}
	if err := s.SetSeminar(seminar); err != nil {
		return nil, err
	}
	if err := s.SetInstitution(institution); err != nil {
		return nil, err
	}
	if createdBy == nil {
		return nil, validationErr("createdBy", "must not be nil")
	}
	s.CreatedBy = createdBy.Skeletal()
	return s, nil
}

// SetPeriod validates and assigns the time window atomically: on a failed
// validation neither timestamp changes.
func (s *SeminarSchedule) SetPeriod(begins, ends time.Time) error {
	if begins.IsZero() || ends.IsZero() {
		return validationErr("period", "both timestamps must be set")
	}
	now := time.Now()
	if begins.Before(now) {
		return validationErr("datetimeBegins", "must not be in the past")
	}
	if ends.Before(begins) {
		return validationErr("datetimeEnds", "must not be before the beginning")
	}
	if err := s.markUpdated(); err != nil {
		return err
	}
	s.Begins = begins
	s.Ends = ends
	return nil
}

func (s *SeminarSchedule) SetSeminar(seminar *Seminar) error {
	if seminar == nil {
		return validationErr("seminar", "must not be nil")
	}
	if err := s.markUpdated(); err != nil {
		return err
	}
	s.Seminar = seminar
	return nil
}

func (s *SeminarSchedule) SetInstitution(institution *EducationalInstitution) error {
	if institution == nil {
		return validationErr("institution", "must not be nil")
	}
	if err := s.markUpdated(); err != nil {
		return err
	}
	s.Institution = institution
	return nil
}

// AddEnrollment appends an enrollment to the owned collection, rejecting
// duplicate participants.
func (s *SeminarSchedule) AddEnrollment(en *SeminarEnrollment) error {
	if en == nil || en.Participant == nil {
		return validationErr("enrollment", "must reference a participant")
	}
	for _, existing := range s.Enrollments {
		if existing.Participant.ParticipantID == en.Participant.ParticipantID {
			return validationErr("enrollment", "participant already enrolled")
		}
	}
	if err := s.markUpdated(); err != nil {
		return err
	}
	en.ScheduleID = s.ScheduleID
	s.Enrollments = append(s.Enrollments, en)
	return nil
}

// RemoveEnrollment drops the enrollment for the given participant.
func (s *SeminarSchedule) RemoveEnrollment(participantID int64) error {
	for i, en := range s.Enrollments {
		if en.Participant.ParticipantID == participantID {
			if err := s.markUpdated(); err != nil {
				return err
			}
			s.Enrollments = append(s.Enrollments[:i], s.Enrollments[i+1:]...)
			return nil
		}
	}
	return validationErr("enrollment", "participant not enrolled")
}

// Validate checks the invariants of a schedule received off the wire. The
// not-in-the-past rules apply only when the schedule is being created or
// updated; loaded historical schedules are exempt.
func (s *SeminarSchedule) Validate() error {
	if s.Begins.IsZero() || s.Ends.IsZero() {
		return validationErr("period", "both timestamps must be set")
	}
	if s.Ends.Before(s.Begins) {
		return validationErr("datetimeEnds", "must not be before the beginning")
	}
	if s.State() == StateInserted || s.State() == StateUpdated {
		if s.Begins.Before(time.Now()) {
			return validationErr("datetimeBegins", "must not be in the past")
		}
	}
	if s.Seminar == nil || s.Seminar.SeminarID == 0 {
		return validationErr("seminar", "must reference an existing seminar")
	}
	if s.Institution == nil || s.Institution.InstitutionID == 0 {
		return validationErr("institution", "must reference an existing institution")
	}
	seen := make(map[int64]bool, len(s.Enrollments))
	for _, en := range s.Enrollments {
		if err := en.Validate(); err != nil {
			return err
		}
		if seen[en.Participant.ParticipantID] {
			return validationErr("enrollments", "duplicate participant enrollment")
		}
		seen[en.Participant.ParticipantID] = true
	}
	return nil
}

// SameIdentity reports primary-key equality, used for collection membership.
func (s *SeminarSchedule) SameIdentity(other *SeminarSchedule) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.ScheduleID == other.ScheduleID
}

// EqualScalars reports full-value equality of the schedule's own fields,
// excluding the owned enrollment collection and the creating admin. It decides
// whether the schedule row itself needs an UPDATE independent of enrollment
// edits.
func (s *SeminarSchedule) EqualScalars(other *SeminarSchedule) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.ScheduleID != other.ScheduleID {
		return false
	}
	if !s.Begins.Equal(other.Begins) || !s.Ends.Equal(other.Ends) {
		return false
	}
	if (s.Seminar == nil) != (other.Seminar == nil) {
		return false
	}
	if s.Seminar != nil && s.Seminar.SeminarID != other.Seminar.SeminarID {
		return false
	}
	if (s.Institution == nil) != (other.Institution == nil) {
		return false
	}
	if s.Institution != nil && s.Institution.InstitutionID != other.Institution.InstitutionID {
		return false
	}
	return true
}

// EqualAll reports full-value equality including the owned enrollment
// collection, used to decide whether a loaded aggregate differs from a freshly
// fetched one. Enrollments match by participant regardless of order.
func (s *SeminarSchedule) EqualAll(other *SeminarSchedule) bool {
	if !s.EqualScalars(other) {
		return false
	}
	if len(s.Enrollments) != len(other.Enrollments) {
		return false
	}
	byParticipant := make(map[int64]*SeminarEnrollment, len(other.Enrollments))
	for _, en := range other.Enrollments {
		byParticipant[en.Participant.ParticipantID] = en
	}
	for _, en := range s.Enrollments {
		match, ok := byParticipant[en.Participant.ParticipantID]
		if !ok || !en.Equal(match) {
			return false
		}
	}
	return true
}

// SnapshotEnrollments records a deep copy of the current enrollments as the
// last-known-persisted collection. The persistence engine diffs against it.
func (s *SeminarSchedule) SnapshotEnrollments() {
	s.snapshot = make([]*SeminarEnrollment, len(s.Enrollments))
	for i, en := range s.Enrollments {
		copied := *en
		if en.Participant != nil {
			p := *en.Participant
			copied.Participant = &p
		}
		s.snapshot[i] = &copied
	}
}

// OriginalEnrollments returns the snapshot taken at load time, nil if the
// schedule was never snapshotted.
func (s *SeminarSchedule) OriginalEnrollments() []*SeminarEnrollment {
	return s.snapshot
}

func (s *SeminarSchedule) Table() string    { return "seminarschedules" }
func (s *SeminarSchedule) IDColumn() string { return "schedule_id" }
func (s *SeminarSchedule) ID() int64        { return s.ScheduleID }
func (s *SeminarSchedule) SetID(id int64)   { s.ScheduleID = id }

func (s *SeminarSchedule) Columns() []string {
	return []string{"datetime_begins", "datetime_ends", "created_by_admin_id", "seminar_id", "institution_id"}
}

func (s *SeminarSchedule) Values() []any {
	return []any{s.Begins, s.Ends, s.CreatedBy.AdminID, s.Seminar.SeminarID, s.Institution.InstitutionID}
}

func (s *SeminarSchedule) UpdateAssignments() ([]string, []any) {
	return []string{"datetime_begins", "datetime_ends", "seminar_id", "institution_id"},
		[]any{s.Begins, s.Ends, s.Seminar.SeminarID, s.Institution.InstitutionID}
}

const scheduleSelectBase = `SELECT ss.schedule_id, ss.datetime_begins, ss.datetime_ends,
	a.admin_id, a.username, a.display_name,
	sem.seminar_id, sem.name, sem.description,
	ei.institution_id, ei.name, ei.address
	FROM seminarschedules ss
	JOIN admins a ON ss.created_by_admin_id = a.admin_id
	JOIN seminars sem ON ss.seminar_id = sem.seminar_id
	JOIN educationalinstitutions ei ON ss.institution_id = ei.institution_id`

func (s *SeminarSchedule) SelectAllQuery() string {
	return scheduleSelectBase + ` ORDER BY ss.datetime_begins`
}

// SelectByIDQuery is the single-schedule variant of SelectAllQuery, filtered
// by a parametrized identity.
func (s *SeminarSchedule) SelectByIDQuery() string {
	return scheduleSelectBase + ` WHERE ss.schedule_id = ?`
}

func (s *SeminarSchedule) FromRow(row RowScanner) (Entity, error) {
	loaded := &SeminarSchedule{
		CreatedBy:   &Admin{},
		Seminar:     &Seminar{},
		Institution: &EducationalInstitution{},
	}
	if err := row.Scan(
		&loaded.ScheduleID,
		&loaded.Begins,
		&loaded.Ends,
		&loaded.CreatedBy.AdminID,
		&loaded.CreatedBy.Username,
		&loaded.CreatedBy.DisplayName,
		&loaded.Seminar.SeminarID,
		&loaded.Seminar.Name,
		&loaded.Seminar.Description,
		&loaded.Institution.InstitutionID,
		&loaded.Institution.Name,
		&loaded.Institution.Address,
	); err != nil {
		return nil, err
	}
	return loaded, nil
}
