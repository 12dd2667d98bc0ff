package domain

import (
	"strings"
	"time"
)

// Gender values accepted for a participant.
const (
	GenderFemale = "female"
	GenderMale   = "male"
	GenderOther  = "other"
)

// Participant is a person who can enroll in seminar schedules.
type Participant struct {
	Lifecycle
	ParticipantID int64     `json:"participantId"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Gender        string    `json:"gender"`
	BirthDate     time.Time `json:"birthDate"`
}

// NewParticipant creates a participant in the inserted state.
func NewParticipant(firstName, lastName, gender string, birthDate time.Time) (*Participant, error) {
	p := &Participant{Lifecycle: Lifecycle{Tag: StateInserted}}
	if err := p.SetName(firstName, lastName); err != nil {
		return nil, err
	}
	if err := p.SetGender(gender); err != nil {
		return nil, err
	}
	if err := p.SetBirthDate(birthDate); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Participant) SetName(first, last string) error {
	if strings.TrimSpace(first) == "" {
		return validationErr("firstName", "must not be empty")
	}
	if strings.TrimSpace(last) == "" {
		return validationErr("lastName", "must not be empty")
	}
	if err := p.markUpdated(); err != nil {
		return err
	}
	p.FirstName = first
	p.LastName = last
	return nil
}

func (p *Participant) SetGender(gender string) error {
	switch gender {
	case GenderFemale, GenderMale, GenderOther:
	default:
		return validationErr("gender", "must be one of female, male, other")
	}
	if err := p.markUpdated(); err != nil {
		return err
	}
	p.Gender = gender
	return nil
}

func (p *Participant) SetBirthDate(birthDate time.Time) error {
	if birthDate.IsZero() {
		return validationErr("birthDate", "must be set")
	}
	if !birthDate.Before(time.Now()) {
		return validationErr("birthDate", "must be in the past")
	}
	if err := p.markUpdated(); err != nil {
		return err
	}
	p.BirthDate = birthDate
	return nil
}

// Validate checks the invariants of a participant received off the wire.
func (p *Participant) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" {
		return validationErr("firstName", "must not be empty")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return validationErr("lastName", "must not be empty")
	}
	switch p.Gender {
	case GenderFemale, GenderMale, GenderOther:
	default:
		return validationErr("gender", "must be one of female, male, other")
	}
	if p.BirthDate.IsZero() || !p.BirthDate.Before(time.Now()) {
		return validationErr("birthDate", "must be in the past")
	}
	return nil
}

func (p *Participant) Table() string    { return "participants" }
func (p *Participant) IDColumn() string { return "participant_id" }
func (p *Participant) ID() int64        { return p.ParticipantID }
func (p *Participant) SetID(id int64)   { p.ParticipantID = id }

func (p *Participant) Columns() []string {
	return []string{"first_name", "last_name", "gender", "birth_date"}
}

func (p *Participant) Values() []any {
	return []any{p.FirstName, p.LastName, p.Gender, p.BirthDate}
}

func (p *Participant) UpdateAssignments() ([]string, []any) {
	return []string{"first_name", "last_name", "gender", "birth_date"},
		[]any{p.FirstName, p.LastName, p.Gender, p.BirthDate}
}

func (p *Participant) SelectAllQuery() string {
	return `SELECT participant_id, first_name, last_name, gender, birth_date FROM participants ORDER BY last_name, first_name`
}

func (p *Participant) FromRow(row RowScanner) (Entity, error) {
	loaded := &Participant{}
	if err := row.Scan(&loaded.ParticipantID, &loaded.FirstName, &loaded.LastName, &loaded.Gender, &loaded.BirthDate); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Skeletal returns an identity-and-display copy for foreign-key references.
func (p *Participant) Skeletal() *Participant {
	return &Participant{ParticipantID: p.ParticipantID, FirstName: p.FirstName, LastName: p.LastName}
}
