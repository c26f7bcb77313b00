package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorWrapping(t *testing.T) {
	root := errors.New("connection reset")
	err := fmt.Errorf("inbound_check: %w", MailboxError("fetch", root))

	if !IsAppError(err) {
		t.Fatal("expected wrapped AppError to be detected")
	}
	if !HasCode(err, CodeMailboxError) {
		t.Errorf("expected code %s", CodeMailboxError)
	}
	if !errors.Is(err, root) {
		t.Error("expected root cause to be reachable through Unwrap")
	}
	if got := AsAppError(err).Status; got != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, got)
	}
}

func TestAsAppErrorFallsBackToInternal(t *testing.T) {
	appErr := AsAppError(errors.New("plain"))
	if appErr.Code != CodeInternalError {
		t.Errorf("expected %s, got %s", CodeInternalError, appErr.Code)
	}
	if appErr.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", appErr.Status)
	}
}

func TestJobLocked(t *testing.T) {
	err := JobLocked("inbound_check")
	if err.Status != http.StatusConflict {
		t.Errorf("expected 409, got %d", err.Status)
	}
	if err.Details["job"] != "inbound_check" {
		t.Errorf("expected job detail, got %v", err.Details)
	}
	if err.Error() != "[JOB_LOCKED] job inbound_check is already running" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
