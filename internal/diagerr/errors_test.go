package diagerr

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestWrapNil(t *testing.T) {
	t.Parallel()

	if err := Wrap(nil, KindIO, "read"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	err := Wrap(fs.ErrNotExist, KindIO, "read attachment")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("errors.Is lost the cause")
	}
	if got, want := err.Error(), "read attachment: file does not exist"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	var e *Error
	if !errors.As(err, &e) || e.ErrorKind() != KindIO {
		t.Fatalf("kind lost, err = %#v", err)
	}
}

func TestStackTraceNamesCaller(t *testing.T) {
	t.Parallel()

	e := New(KindUpload, "boom")
	stack := e.StackTrace()
	if len(stack) == 0 {
		t.Fatal("expected captured frames")
	}
	if !strings.Contains(stack[0], "TestStackTraceNamesCaller") {
		t.Fatalf("first frame = %q, want the test function", stack[0])
	}
	if !strings.HasPrefix(stack[0], "   at ") {
		t.Fatalf("frame format = %q", stack[0])
	}
}

func TestNewf(t *testing.T) {
	t.Parallel()

	e := Newf(KindHTTP, "status %d", 502)
	if e.Message() != "status 502" || e.ErrorKind() != KindHTTP {
		t.Fatalf("got %q / %q", e.Message(), e.ErrorKind())
	}
	if e.Unwrap() != nil {
		t.Fatal("expected no cause")
	}
}
