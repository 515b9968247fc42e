package logging

import (
	"errors"
	"io"
	"testing"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("usecase.predict", "req-1", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorFormatsAndUnwraps(t *testing.T) {
	err := NewOperationError("imageprocessor.normalize", "req-7", io.ErrUnexpectedEOF)

	want := "imageprocessor.normalize (request_id=req-7): unexpected EOF"
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expected wrapped error to be reachable with errors.Is")
	}
	if op := OperationOf(err); op != "imageprocessor.normalize" {
		t.Fatalf("unexpected operation: %s", op)
	}
}

func TestOperationErrorWithoutRequestID(t *testing.T) {
	err := NewOperationError("inference.load_model", "", errors.New("missing file"))
	if err.Error() != "inference.load_model: missing file" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if OperationOf(errors.New("plain")) != "" {
		t.Fatal("expected empty operation for plain error")
	}
}
