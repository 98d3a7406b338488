package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInvalidState, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeIdentityInconsistency, status: http.StatusInternalServerError, publicMsg: "identity store inconsistency"},
		{code: CodeNotification, status: http.StatusBadGateway, publicMsg: "notification delivery failed", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	inner := New(CodeConflict, "application already decided")
	outer := fmt.Errorf("decide: %w", inner)
	if !Is(outer, CodeConflict) {
		t.Fatalf("expected conflict code through fmt wrapping")
	}
	if Is(outer, CodeNotFound) {
		t.Fatalf("did not expect not found code")
	}
	if Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection reset"), "persist decision")
	if got := err.Error(); got != "DEPENDENCY_ERROR: persist decision: connection reset" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := New(CodeNotFound, "application not found").Error(); got != "NOT_FOUND: application not found" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Wrap(CodeDependency, stdErrors.New("db"), "load")) {
		t.Fatalf("dependency errors are retryable")
	}
	if Retryable(New(CodeConflict, "already decided")) {
		t.Fatalf("conflicts are final")
	}
	if !Retryable(stdErrors.New("plain")) {
		t.Fatalf("uncoded errors count as internal and are retryable")
	}
	if Retryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestDumpCollectsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_members_email", TableName: "members"}
	dump := Dump(Wrap(CodeConflict, fmt.Errorf("create member: %w", pgErr), "member exists"))

	if dump.Code != CodeConflict || dump.PGCode != "23505" || dump.PGConstraint != "ux_members_email" {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected three chain entries, got %v", dump.Chain)
	}

	pqDump := Dump(&pq.Error{Code: "23503", Constraint: "fk_member_roles_member"})
	if pqDump.PGCode != "23503" || pqDump.PGConstraint != "fk_member_roles_member" {
		t.Fatalf("unexpected pq dump %+v", pqDump)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil dump should be empty")
	}
}
