package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusCreated {
		t.Fatalf("expected status 201 but got %d", got)
	}

	var body Success
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "bad input"), http.StatusBadRequest, "VALIDATION_ERROR", "bad input"},
		{pkgerrors.New(pkgerrors.CodeConflict, "application already decided"), http.StatusConflict, "CONFLICT", "application already decided"},
		{pkgerrors.New(pkgerrors.CodeInvalidState, "application has already been decided"), http.StatusUnprocessableEntity, "INVALID_STATE_TRANSITION", "application has already been decided"},
		{pkgerrors.Wrap(pkgerrors.CodeIdentityInconsistency, errors.New("boom"), "secret detail"), http.StatusInternalServerError, "IDENTITY_INCONSISTENCY", "identity store inconsistency"},
		{errors.New("raw"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, tc.err)

		if w.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.status, w.Code)
		}
		var body Failure
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode error envelope: %v", err)
		}
		if body.Error.Code != tc.code || body.Error.Message != tc.message {
			t.Fatalf("unexpected error body %+v", body.Error)
		}
	}
}

func TestWriteErrorIncludesAllowedDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"email": "is required"})
	WriteError(context.Background(), nil, w, err)

	if !strings.Contains(w.Body.String(), `"email":"is required"`) {
		t.Fatalf("expected details in body, got %s", w.Body.String())
	}
}

func TestWriteErrorLogsServerFailures(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "persist decision"))
	if !strings.Contains(buf.String(), "request.error") || !strings.Contains(buf.String(), "DEPENDENCY_ERROR") {
		t.Fatalf("expected error log, got %s", buf.String())
	}
}

func TestWriteErrorFlagsRetryableAndRateLimit(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	w = httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "persist decision"))
	var body Failure
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if !body.Error.Retryable {
		t.Fatalf("dependency errors should be marked retryable: %+v", body.Error)
	}
}
