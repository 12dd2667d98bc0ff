package domain

// SeminarEnrollment ties a participant to a seminar schedule. The schedule
// exclusively owns its enrollments; the ScheduleID field is a back-reference
// only.
type SeminarEnrollment struct {
	Lifecycle
	EnrollmentID int64        `json:"enrollmentId"`
	ScheduleID   int64        `json:"scheduleId"`
	Participant  *Participant `json:"participant"`
	Attended     bool         `json:"attended"`
	Grade        int          `json:"grade"`
}

// NewSeminarEnrollment creates an enrollment in the inserted state.
func NewSeminarEnrollment(participant *Participant) (*SeminarEnrollment, error) {
	if participant == nil {
		return nil, validationErr("participant", "must not be nil")
	}
	return &SeminarEnrollment{
		Lifecycle:   Lifecycle{Tag: StateInserted},
		Participant: participant.Skeletal(),
	}, nil
}

func (en *SeminarEnrollment) SetAttended(attended bool) error {
	if err := en.markUpdated(); err != nil {
		return err
	}
	en.Attended = attended
	return nil
}

// SetGrade records the grade on the usual 5-10 scale; zero clears it.
func (en *SeminarEnrollment) SetGrade(grade int) error {
	if grade != 0 && (grade < 5 || grade > 10) {
		return validationErr("grade", "must be between 5 and 10")
	}
	if err := en.markUpdated(); err != nil {
		return err
	}
	en.Grade = grade
	return nil
}

// Validate checks the invariants of an enrollment received off the wire.
func (en *SeminarEnrollment) Validate() error {
	if en.Participant == nil || en.Participant.ParticipantID == 0 {
		return validationErr("participant", "must reference an existing participant")
	}
	if en.Grade != 0 && (en.Grade < 5 || en.Grade > 10) {
		return validationErr("grade", "must be between 5 and 10")
	}
	return nil
}

// Equal reports full-value equality: same participant, attendance and grade.
func (en *SeminarEnrollment) Equal(other *SeminarEnrollment) bool {
	if en == nil || other == nil {
		return en == other
	}
	return en.Participant.ParticipantID == other.Participant.ParticipantID &&
		en.Attended == other.Attended &&
		en.Grade == other.Grade
}

func (en *SeminarEnrollment) Table() string    { return "seminarenrollments" }
func (en *SeminarEnrollment) IDColumn() string { return "enrollment_id" }
func (en *SeminarEnrollment) ID() int64        { return en.EnrollmentID }
func (en *SeminarEnrollment) SetID(id int64)   { en.EnrollmentID = id }

func (en *SeminarEnrollment) Columns() []string {
	return []string{"schedule_id", "participant_id", "attended", "grade"}
}

func (en *SeminarEnrollment) Values() []any {
	return []any{en.ScheduleID, en.Participant.ParticipantID, en.Attended, en.Grade}
}

func (en *SeminarEnrollment) UpdateAssignments() ([]string, []any) {
	return []string{"attended", "grade"}, []any{en.Attended, en.Grade}
}

const enrollmentSelectBase = `SELECT e.enrollment_id, e.schedule_id, e.attended, e.grade,
	p.participant_id, p.first_name, p.last_name
	FROM seminarenrollments e
	JOIN participants p ON e.participant_id = p.participant_id`

func (en *SeminarEnrollment) SelectAllQuery() string {
	return enrollmentSelectBase + ` ORDER BY e.enrollment_id`
}

// SelectByScheduleQuery lists the enrollments owned by one schedule, filtered
// by a parametrized schedule identity.
func (en *SeminarEnrollment) SelectByScheduleQuery() string {
	return enrollmentSelectBase + ` WHERE e.schedule_id = ? ORDER BY e.enrollment_id`
}

func (en *SeminarEnrollment) FromRow(row RowScanner) (Entity, error) {
	loaded := &SeminarEnrollment{Participant: &Participant{}}
	if err := row.Scan(
		&loaded.EnrollmentID,
		&loaded.ScheduleID,
		&loaded.Attended,
		&loaded.Grade,
		&loaded.Participant.ParticipantID,
		&loaded.Participant.FirstName,
		&loaded.Participant.LastName,
	); err != nil {
		return nil, err
	}
	return loaded, nil
}
