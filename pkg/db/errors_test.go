package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	pgDup := &pgconn.PgError{Code: "23505", ConstraintName: "ux_members_email"}
	pgOther := &pgconn.PgError{Code: "23503", ConstraintName: "fk_member_roles_member"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pg unique", err: fmt.Errorf("create: %w", pgDup), want: true},
		{name: "pg unique named", err: pgDup, constraint: "ux_members_email", want: true},
		{name: "pg unique other constraint", err: pgDup, constraint: "ux_contacts_email", want: false},
		{name: "pg foreign key", err: pgOther, want: false},
		{name: "gorm translated", err: gorm.ErrDuplicatedKey, want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: members.email"), want: true},
		{name: "plain", err: errors.New("connection reset"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("IsUniqueViolation(%v, %q) = %v, want %v", tt.err, tt.constraint, got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)) {
		t.Fatal("expected wrapped record-not-found to match")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("unexpected match for plain error")
	}
}
