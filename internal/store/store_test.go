package store

import "testing"

func TestDialectRebind(t *testing.T) {
	cases := []struct {
		name  string
		d     dialect
		query string
		want  string
	}{
		{"sqlite keeps marks", dialectSQLite, "SELECT 1 WHERE a = ? AND b = ?", "SELECT 1 WHERE a = ? AND b = ?"},
		{"postgres ordinals", dialectPostgres, "UPDATE t SET a = ?, b = ? WHERE id = ?", "UPDATE t SET a = $1, b = $2 WHERE id = $3"},
		{"postgres no marks", dialectPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.rebind(tc.query); got != tc.want {
				t.Errorf("rebind(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestDialectIdentityReadback(t *testing.T) {
	if dialectSQLite.supportsReturning() {
		t.Error("sqlite should read identities via LastInsertId")
	}
	if !dialectPostgres.supportsReturning() {
		t.Error("postgres should read identities via RETURNING")
	}
}
