package errs_test

import (
	"errors"
	"testing"

	"github.com/marlecce/emme/internal/errs"
)

func TestErrorFormatsWithAndWithoutParent(t *testing.T) {
	bare := errs.New(errs.ErrParse, "bad request", nil)
	if bare.Error() == "" {
		t.Fatal("expected non-empty error string")
	}

	parent := errors.New("underlying cause")
	wrapped := errs.New(errs.ErrParse, "bad request", parent)
	if !errors.Is(wrapped, parent) {
		t.Fatal("expected Unwrap to expose the parent error via errors.Is")
	}
}

func TestIsComparesCodeNotIdentity(t *testing.T) {
	a := errs.New(errs.ErrRouteMiss, "first", nil)
	b := errs.New(errs.ErrRouteMiss, "second, different message", nil)

	if !errors.Is(a, b) {
		t.Fatal("expected two errors with the same Code to satisfy errors.Is")
	}

	c := errs.New(errs.ErrBackend, "different code", nil)
	if errors.Is(a, c) {
		t.Fatal("expected errors with different Codes to not satisfy errors.Is")
	}
}

func TestCodeOnNilError(t *testing.T) {
	var e *errs.Error
	if e.Code() != errs.Unknown {
		t.Fatalf("expected Unknown code from nil *Error, got %d", e.Code())
	}
	if e.Error() != "" {
		t.Fatalf("expected empty string from nil *Error, got %q", e.Error())
	}
}
