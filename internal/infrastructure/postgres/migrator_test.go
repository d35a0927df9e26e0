package postgres

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestMigratorRejectsMissingSource(t *testing.T) {
	m := NewMigrator("postgres://invalid:5432/db?sslmode=disable", t.TempDir()+"/missing", zerolog.Nop())

	if err := m.Up(); err == nil {
		t.Fatalf("expected error for missing migrations directory")
	}
	if err := m.Down(); err == nil {
		t.Fatalf("expected error for missing migrations directory")
	}
}
