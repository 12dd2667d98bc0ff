package domain

import "strings"

// EducationalInstitution hosts scheduled seminars.
type EducationalInstitution struct {
	Lifecycle
	InstitutionID int64  `json:"institutionId"`
	Name          string `json:"name"`
	Address       string `json:"address"`
}

// NewEducationalInstitution creates an institution in the inserted state.
func NewEducationalInstitution(name, address string) (*EducationalInstitution, error) {
	ei := &EducationalInstitution{Lifecycle: Lifecycle{Tag: StateInserted}}
	if err := ei.SetName(name); err != nil {
		return nil, err
	}
	if err := ei.SetAddress(address); err != nil {
		return nil, err
	}
	return ei, nil
}

func (ei *EducationalInstitution) SetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationErr("name", "must not be empty")
	}
	if err := ei.markUpdated(); err != nil {
		return err
	}
	ei.Name = name
	return nil
}

func (ei *EducationalInstitution) SetAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return validationErr("address", "must not be empty")
	}
	if err := ei.markUpdated(); err != nil {
		return err
	}
	ei.Address = address
	return nil
}

// Validate checks the invariants of an institution received off the wire.
func (ei *EducationalInstitution) Validate() error {
	if strings.TrimSpace(ei.Name) == "" {
		return validationErr("name", "must not be empty")
	}
	if strings.TrimSpace(ei.Address) == "" {
		return validationErr("address", "must not be empty")
	}
	return nil
}

func (ei *EducationalInstitution) Table() string    { return "educationalinstitutions" }
func (ei *EducationalInstitution) IDColumn() string { return "institution_id" }
func (ei *EducationalInstitution) ID() int64        { return ei.InstitutionID }
func (ei *EducationalInstitution) SetID(id int64)   { ei.InstitutionID = id }

func (ei *EducationalInstitution) Columns() []string {
	return []string{"name", "address"}
}

func (ei *EducationalInstitution) Values() []any {
	return []any{ei.Name, ei.Address}
}

func (ei *EducationalInstitution) UpdateAssignments() ([]string, []any) {
	return []string{"name", "address"}, []any{ei.Name, ei.Address}
}

func (ei *EducationalInstitution) SelectAllQuery() string {
	return `SELECT institution_id, name, address FROM educationalinstitutions ORDER BY name`
}

func (ei *EducationalInstitution) FromRow(row RowScanner) (Entity, error) {
	loaded := &EducationalInstitution{}
	if err := row.Scan(&loaded.InstitutionID, &loaded.Name, &loaded.Address); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Skeletal returns an identity-and-display copy for foreign-key references.
func (ei *EducationalInstitution) Skeletal() *EducationalInstitution {
	return &EducationalInstitution{InstitutionID: ei.InstitutionID, Name: ei.Name, Address: ei.Address}
}
