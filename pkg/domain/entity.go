package domain

// RowScanner is the slice of *sql.Rows the entity contract needs to parse
// itself out of a result row. Keeping it local avoids a database/sql
// dependency in the domain package.
type RowScanner interface {
	Scan(dest ...any) error
}

// Entity is the capability every persistable type implements: it describes its
// own table, primary key, column list and update fragment, and can construct a
// new instance from a result row. The persistence engine drives generic
// INSERT/UPDATE/DELETE statements off this contract instead of per-entity SQL.
//
// Values and UpdateAssignments return parametrized arguments, never rendered
// literals; the engine binds them through placeholders.
type Entity interface {
	// Table is the relational table backing the entity.
	Table() string
	// IDColumn is the auto-generated primary key column.
	IDColumn() string
	// ID returns the assigned identity, zero if not yet persisted.
	ID() int64
	// SetID assigns the identity read back after an insert.
	SetID(id int64)

	// State and SetState expose the lifecycle tag; embedding Lifecycle
	// provides both.
	State() State
	SetState(next State) error

	// Columns lists the insertable columns in table order, excluding the
	// auto-generated identity.
	Columns() []string
	// Values returns the arguments matching Columns, foreign keys rendered
	// as the referenced entity's identity.
	Values() []any
	// UpdateAssignments returns the mutable columns and their arguments for
	// an UPDATE statement, excluding identity and audit columns.
	UpdateAssignments() ([]string, []any)

	// SelectAllQuery is the canonical join query for bulk listing, including
	// the joins needed to hydrate skeletal references.
	SelectAllQuery() string
	// FromRow constructs a new instance from a result row produced by
	// SelectAllQuery. Foreign keys resolve into skeletal references.
	FromRow(row RowScanner) (Entity, error)
}
