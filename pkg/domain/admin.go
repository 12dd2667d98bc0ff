package domain

import "strings"

// Admin is an administrator account able to open a client session. The
// password hash never travels over the wire.
type Admin struct {
	Lifecycle
	AdminID      int64  `json:"adminId"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	DisplayName  string `json:"displayName"`
}

// NewAdmin creates an admin in the inserted state.
func NewAdmin(username, passwordHash, displayName string) (*Admin, error) {
	a := &Admin{Lifecycle: Lifecycle{Tag: StateInserted}}
	if err := a.SetUsername(username); err != nil {
		return nil, err
	}
	if err := a.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	a.PasswordHash = passwordHash
	return a, nil
}

func (a *Admin) SetUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return validationErr("username", "must not be empty")
	}
	if err := a.markUpdated(); err != nil {
		return err
	}
	a.Username = username
	return nil
}

func (a *Admin) SetDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationErr("displayName", "must not be empty")
	}
	if err := a.markUpdated(); err != nil {
		return err
	}
	a.DisplayName = name
	return nil
}

// Validate checks the invariants of an admin received off the wire.
func (a *Admin) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return validationErr("username", "must not be empty")
	}
	if strings.TrimSpace(a.DisplayName) == "" {
		return validationErr("displayName", "must not be empty")
	}
	return nil
}

func (a *Admin) Table() string    { return "admins" }
func (a *Admin) IDColumn() string { return "admin_id" }
func (a *Admin) ID() int64        { return a.AdminID }
func (a *Admin) SetID(id int64)   { a.AdminID = id }

func (a *Admin) Columns() []string {
	return []string{"username", "password_hash", "display_name"}
}

func (a *Admin) Values() []any {
	return []any{a.Username, a.PasswordHash, a.DisplayName}
}

func (a *Admin) UpdateAssignments() ([]string, []any) {
	return []string{"username", "display_name"}, []any{a.Username, a.DisplayName}
}

func (a *Admin) SelectAllQuery() string {
	return `SELECT admin_id, username, password_hash, display_name FROM admins ORDER BY username`
}

func (a *Admin) FromRow(row RowScanner) (Entity, error) {
	loaded := &Admin{}
	if err := row.Scan(&loaded.AdminID, &loaded.Username, &loaded.PasswordHash, &loaded.DisplayName); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Skeletal returns a copy carrying only identity and display fields, used as a
// foreign-key reference on other entities.
func (a *Admin) Skeletal() *Admin {
	return &Admin{AdminID: a.AdminID, Username: a.Username, DisplayName: a.DisplayName}
}
