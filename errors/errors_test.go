package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseValue,
				Kind:   KindTypeMismatch,
				Path:   []string{"user", "address", "zip"},
				GoType: "int",
				JSType: "string",
				Detail: "cannot convert",
			},
			contains: []string{"[value]", "type_mismatch", "user.address.zip", "Go type int", "JS type string", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseScheduler,
				Kind:  KindTeardown,
			},
			contains: []string{"[scheduler]", "teardown"},
		},
		{
			name: "script error",
			err:  ScriptEvaluation("boot.js", "TypeError", "x is not a function", "", nil),
			contains: []string{
				"[eval]", "script_evaluation", "boot.js", "TypeError: x is not a function",
			},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseHost,
				Kind:   KindNativeThrow,
				Detail: "host callback failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[host]", "native_throw", "host callback failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NativeThrow("add", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhasePromise,
		Kind:  KindDoubleSettlement,
	}

	if !err.Is(&Error{Phase: PhasePromise, Kind: KindDoubleSettlement}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseHost, Kind: KindDoubleSettlement}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhasePromise, Kind: KindTeardown}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrDoubleSettlement) {
		t.Error("sentinel without phase should match any phase")
	}
	if errors.Is(err, ErrRuntimeLost) {
		t.Error("sentinel of another kind should not match")
	}
}

func TestError_Code(t *testing.T) {
	err := Teardown(PhaseScheduler, "execute")
	if got := err.Code(); got != "scheduler.teardown" {
		t.Errorf("Code() = %q, want scheduler.teardown", got)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseHost, KindTypeMismatch).
		Path("Math", "add").
		GoType("int").
		JSType("string").
		Value(42).
		Cause(cause).
		Script("TypeError", "bad", "at add").
		Detail("argument %d: expected %s", 0, "number").
		Build()

	if err.Phase != PhaseHost {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseHost)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "Math" || err.Path[1] != "add" {
		t.Errorf("Path = %v, want [Math add]", err.Path)
	}
	if err.GoType != "int" || err.JSType != "string" {
		t.Errorf("GoType=%v JSType=%v", err.GoType, err.JSType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Name != "TypeError" || err.Message != "bad" || err.Stack != "at add" {
		t.Errorf("script fields = %q %q %q", err.Name, err.Message, err.Stack)
	}
	if err.Detail != "argument 0: expected number" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"RuntimeLost", RuntimeLost(PhaseValue, "get"), PhaseValue, KindRuntimeLost},
		{"WrongKind", WrongKind("number", "string"), PhaseValue, KindWrongKind},
		{"PromiseRejected", PromiseRejected("Error", "nope", "", nil), PhasePromise, KindPromiseRejected},
		{"DoubleSettlement", DoubleSettlement("resolve"), PhasePromise, KindDoubleSettlement},
		{"Teardown", Teardown(PhaseScheduler, "schedule"), PhaseScheduler, KindTeardown},
		{"EmptyReference", EmptyReference(), PhaseReference, KindEmptyReference},
		{"Released", Released("object"), PhaseValue, KindReleased},
		{"WrongThread", WrongThread("object.get"), PhaseScheduler, KindWrongThread},
		{"Canceled", Canceled(PhasePromise, errors.New("ctx")), PhasePromise, KindCanceled},
		{"Unsupported", Unsupported(PhaseModule, "bigint params"), PhaseModule, KindUnsupported},
		{"NotFound", NotFound(PhaseModule, "event", "onTick"), PhaseModule, KindNotFound},
		{"InvalidInput", InvalidInput(PhaseModule, "empty name"), PhaseModule, KindInvalidInput},
		{"Registration", Registration(PhaseModule, "Math", "add", nil), PhaseModule, KindRegistration},
		{"Instantiation", Instantiation(errors.New("bad")), PhaseLoad, KindInstantiation},
		{"Load", Load("compile", nil), PhaseLoad, KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
		})
	}
}

func TestPanic(t *testing.T) {
	t.Run("error value", func(t *testing.T) {
		cause := errors.New("boom")
		err := Panic("fn", cause)
		if !errors.Is(err, cause) {
			t.Error("panic with error should keep it as cause")
		}
	})

	t.Run("non-error value", func(t *testing.T) {
		err := Panic("fn", "boom")
		if err.Kind != KindNativeThrow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNativeThrow)
		}
		if !strings.Contains(err.Error(), "panic: boom") {
			t.Errorf("message %q should contain panic value", err.Error())
		}
	})
}
