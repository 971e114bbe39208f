package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":              OK,
		"invalid_params":  InvalidParams,
		"state_violation": StateViolation,
		"unsupported":     Unsupported,
		"timeout":         Timeout,
		"busy":            Busy,
		"error":           Error,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestOfUnwrapsContext(t *testing.T) {
	if got := Of(nil); got != OK {
		t.Fatalf("Of(nil)=%q", got)
	}
	if got := Of(InvalidParams); got != InvalidParams {
		t.Fatalf("bare code: got %q", got)
	}
	err := New(StateViolation, "queue.append", "queue is circular")
	if got := Of(err); got != StateViolation {
		t.Fatalf("wrapped code: got %q", got)
	}
	outer := fmt.Errorf("build adc: %w", err)
	if got := Of(outer); got != StateViolation {
		t.Fatalf("fmt-wrapped code: got %q", got)
	}
	if !errors.Is(outer, StateViolation) {
		t.Fatal("errors.Is should match the code through wrapping")
	}
	if got := Of(errors.New("boom")); got != Error {
		t.Fatalf("foreign error: got %q", got)
	}
}

func TestStatusIsTwoValued(t *testing.T) {
	if Status(nil) != OK {
		t.Fatal("nil should be OK")
	}
	for _, err := range []error{InvalidParams, New(Timeout, "stop", ""), errors.New("x")} {
		if Status(err) != Error {
			t.Fatalf("Status(%v) should be Error", err)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Error, "op", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	e := Wrap(Timeout, "stop", errors.New("deadline"))
	if e.Error() != "stop: timeout: deadline" {
		t.Fatalf("unexpected message %q", e.Error())
	}
}
