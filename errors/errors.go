package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which layer of the interop stack raised the error
type Phase string

const (
	PhaseValue     Phase = "value"     // handle access and conversion
	PhaseReference Phase = "reference" // Reference[T] ownership
	PhaseHost      Phase = "host"      // host function/object bridging
	PhasePromise   Phase = "promise"   // promise wrapping and deferred settlement
	PhaseScheduler Phase = "scheduler" // engine thread task queue
	PhaseEval      Phase = "eval"      // script evaluation
	PhaseRuntime   Phase = "runtime"   // runtime lifecycle
	PhaseModule    Phase = "module"    // module registry
	PhaseLoad      Phase = "load"      // wasm module loading
)

// Kind categorizes the error
type Kind string

const (
	KindRuntimeLost      Kind = "runtime_lost"
	KindWrongKind        Kind = "wrong_kind"
	KindScriptEvaluation Kind = "script_evaluation"
	KindDoubleSettlement Kind = "double_settlement"
	KindNativeThrow      Kind = "native_throw"
	KindTeardown         Kind = "teardown"
	KindEmptyReference   Kind = "empty_reference"
	KindReleased         Kind = "released"
	KindPromiseRejected  Kind = "promise_rejected"
	KindWrongThread      Kind = "wrong_thread"
	KindCanceled         Kind = "canceled"
	KindTypeMismatch     Kind = "type_mismatch"
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindRegistration     Kind = "registration"
	KindInstantiation    Kind = "instantiation"
)

// Sentinels for errors.Is. They carry no phase, so they match any phase.
var (
	ErrRuntimeLost      = &Error{Kind: KindRuntimeLost}
	ErrWrongKind        = &Error{Kind: KindWrongKind}
	ErrScriptEvaluation = &Error{Kind: KindScriptEvaluation}
	ErrDoubleSettlement = &Error{Kind: KindDoubleSettlement}
	ErrNativeThrow      = &Error{Kind: KindNativeThrow}
	ErrTeardown         = &Error{Kind: KindTeardown}
	ErrEmptyReference   = &Error{Kind: KindEmptyReference}
	ErrReleased         = &Error{Kind: KindReleased}
	ErrPromiseRejected  = &Error{Kind: KindPromiseRejected}
	ErrWrongThread      = &Error{Kind: KindWrongThread}
	ErrCanceled         = &Error{Kind: KindCanceled}
)

// Error is the structured error type used throughout the runtime.
//
// Errors that originate in script (evaluation failures, rejected promises,
// exceptions thrown through host calls) carry the script error's Name,
// Message and Stack, and the thrown value itself in Value.
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Name    string
	Message string
	Stack   string
	GoType  string
	JSType  string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	wroteType := false
	if e.GoType != "" || e.JSType != "" {
		wroteType = true
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.JSType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", JS type ")
			b.WriteString(e.JSType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("JS type ")
			b.WriteString(e.JSType)
		}
	}

	if e.Detail != "" {
		if wroteType {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if msg := e.scriptMessage(); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func (e *Error) scriptMessage() string {
	switch {
	case e.Name != "" && e.Message != "":
		return e.Name + ": " + e.Message
	case e.Message != "":
		return e.Message
	default:
		return e.Name
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. An empty Phase in the
// target matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns "phase.kind", the value exposed to script as error.code.
func (e *Error) Code() string {
	return string(e.Phase) + "." + string(e.Kind)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the property path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// JSType sets the script-side type name
func (b *Builder) JSType(t string) *Builder {
	b.err.JSType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Script records the name, message and stack of a script error
func (b *Builder) Script(name, message, stack string) *Builder {
	b.err.Name = name
	b.err.Message = message
	b.err.Stack = stack
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// RuntimeLost reports use of a handle or bridge after its runtime is gone.
func RuntimeLost(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRuntimeLost,
		Detail: fmt.Sprintf("%s: runtime has been torn down", op),
	}
}

// WrongKind reports a kind-specific accessor used on a value of another kind.
func WrongKind(expected, actual string) *Error {
	return &Error{
		Phase:  PhaseValue,
		Kind:   KindWrongKind,
		JSType: actual,
		Detail: fmt.Sprintf("expected %s", expected),
	}
}

// ScriptEvaluation wraps an exception raised while evaluating a script.
func ScriptEvaluation(label, name, message, stack string, value any) *Error {
	e := &Error{
		Phase:   PhaseEval,
		Kind:    KindScriptEvaluation,
		Name:    name,
		Message: message,
		Stack:   stack,
		Value:   value,
	}
	if label != "" {
		e.Path = []string{label}
	}
	return e
}

// PromiseRejected wraps the reason of a rejected promise.
func PromiseRejected(name, message, stack string, value any) *Error {
	return &Error{
		Phase:   PhasePromise,
		Kind:    KindPromiseRejected,
		Name:    name,
		Message: message,
		Stack:   stack,
		Value:   value,
	}
}

// DoubleSettlement reports a second resolve/reject of a deferred promise.
func DoubleSettlement(op string) *Error {
	return &Error{
		Phase:  PhasePromise,
		Kind:   KindDoubleSettlement,
		Detail: fmt.Sprintf("%s called on an already settled promise", op),
	}
}

// NativeThrow wraps a Go error or panic raised inside a host callback.
func NativeThrow(function string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindNativeThrow,
		Path:   []string{function},
		Cause:  cause,
		Detail: "host callback failed",
	}
}

// Panic converts a recovered panic value into a NativeThrow error.
func Panic(function string, recovered any) *Error {
	if err, ok := recovered.(error); ok {
		return NativeThrow(function, err)
	}
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindNativeThrow,
		Path:   []string{function},
		Value:  recovered,
		Detail: fmt.Sprintf("panic: %v", recovered),
	}
}

// Teardown reports work dropped because the runtime is shutting down.
func Teardown(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTeardown,
		Detail: fmt.Sprintf("%s: runtime torn down", op),
	}
}

// EmptyReference reports Take on an empty Reference.
func EmptyReference() *Error {
	return &Error{
		Phase:  PhaseReference,
		Kind:   KindEmptyReference,
		Detail: "take from empty reference",
	}
}

// Released reports use of a handle after Release.
func Released(what string) *Error {
	return &Error{
		Phase:  PhaseValue,
		Kind:   KindReleased,
		JSType: what,
		Detail: "handle used after release",
	}
}

// WrongThread reports an engine operation attempted off the engine goroutine.
func WrongThread(op string) *Error {
	return &Error{
		Phase:  PhaseScheduler,
		Kind:   KindWrongThread,
		Detail: fmt.Sprintf("%s must run on the engine goroutine", op),
	}
}

// Canceled wraps a context cancellation observed while waiting.
func Canceled(phase Phase, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindCanceled,
		Cause: cause,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, jsType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GoType: goType,
		JSType: jsType,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
