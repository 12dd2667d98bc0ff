package domain

import "strings"

// Seminar is an offering that can be scheduled at an institution. Schedules
// reference it; they do not own it.
type Seminar struct {
	Lifecycle
	SeminarID   int64  `json:"seminarId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewSeminar creates a seminar in the inserted state.
func NewSeminar(name, description string) (*Seminar, error) {
	s := &Seminar{Lifecycle: Lifecycle{Tag: StateInserted}}
	if err := s.SetName(name); err != nil {
		return nil, err
	}
	if err := s.SetDescription(description); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Seminar) SetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationErr("name", "must not be empty")
	}
	if err := s.markUpdated(); err != nil {
		return err
	}
	s.Name = name
	return nil
}

func (s *Seminar) SetDescription(description string) error {
	if err := s.markUpdated(); err != nil {
		return err
	}
	s.Description = description
	return nil
}

// Validate checks the invariants of a seminar received off the wire.
func (s *Seminar) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return validationErr("name", "must not be empty")
	}
	return nil
}

func (s *Seminar) Table() string    { return "seminars" }
func (s *Seminar) IDColumn() string { return "seminar_id" }
func (s *Seminar) ID() int64        { return s.SeminarID }
func (s *Seminar) SetID(id int64)   { s.SeminarID = id }

func (s *Seminar) Columns() []string {
	return []string{"name", "description"}
}

func (s *Seminar) Values() []any {
	return []any{s.Name, s.Description}
}

func (s *Seminar) UpdateAssignments() ([]string, []any) {
	return []string{"name", "description"}, []any{s.Name, s.Description}
}

func (s *Seminar) SelectAllQuery() string {
	return `SELECT seminar_id, name, description FROM seminars ORDER BY name`
}

func (s *Seminar) FromRow(row RowScanner) (Entity, error) {
	loaded := &Seminar{}
	if err := row.Scan(&loaded.SeminarID, &loaded.Name, &loaded.Description); err != nil {
		return nil, err
	}
	return loaded, nil
}
