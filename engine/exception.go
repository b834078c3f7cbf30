package engine

import (
	stderrors "errors"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/errors"
)

// ErrorInfo extracts name, message and stack from a thrown value. Non-error
// values report their string form as the message.
func ErrorInfo(v goja.Value) (name, message, stack string) {
	if v == nil {
		return "", "", ""
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return "", v.String(), ""
	}
	name = stringProp(obj, "name")
	message = stringProp(obj, "message")
	stack = stringProp(obj, "stack")
	if name == "" && message == "" {
		message = obj.String()
	}
	return name, message, stack
}

func stringProp(obj *goja.Object, key string) (s string) {
	// Accessors on script objects may throw; a failed read is just empty.
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	v := obj.Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// ScriptError converts an error returned by goja into an *errors.Error.
// Exceptions become KindScriptEvaluation carrying the thrown value;
// interrupts become KindTeardown.
func ScriptError(label string, err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		e := errors.Teardown(errors.PhaseEval, "evaluate")
		if cause, ok := interrupted.Value().(error); ok {
			e.Cause = cause
		}
		return e
	}

	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		name, message, stack := ErrorInfo(ex.Value())
		e := errors.ScriptEvaluation(label, name, message, stack, ex.Value())
		// A Go error thrown through script by a host function.
		if cause := ex.Unwrap(); cause != nil {
			e.Cause = cause
		}
		return e
	}

	var se *errors.Error
	if stderrors.As(err, &se) {
		return se
	}
	return errors.Wrap(errors.PhaseEval, errors.KindScriptEvaluation, err, label)
}

// Rejection converts a promise rejection reason into an *errors.Error.
func Rejection(reason goja.Value) *errors.Error {
	name, message, stack := ErrorInfo(reason)
	e := errors.PromiseRejected(name, message, stack, reason)
	if obj, ok := reason.(*goja.Object); ok {
		if v := obj.Get("value"); v != nil {
			if cause, ok := v.Export().(error); ok {
				e.Cause = cause
			}
		}
	}
	return e
}

// ThrowValue converts a Go error into the value a host function throws.
// An error that already carries a script value rethrows that value, so a
// script exception passing through Go code reaches script unchanged.
func (e *Engine) ThrowValue(err error) goja.Value {
	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		return ex.Value()
	}

	var se *errors.Error
	if stderrors.As(err, &se) {
		if v, ok := se.Value.(goja.Value); ok {
			return v
		}
		obj := e.vm.NewGoError(err)
		_ = obj.Set("code", se.Code())
		return obj
	}
	return e.vm.NewGoError(err)
}

// isUncatchable reports whether a recovered panic value must keep unwinding
// through the engine untouched.
func isUncatchable(r any) bool {
	switch r.(type) {
	case goja.Value, *goja.Exception, *goja.InterruptedError, *goja.StackOverflowError:
		return true
	}
	return false
}
