// Package require contains test assertion helpers used throughout this
// module's internal packages. It intentionally mirrors only the subset of
// testify/require that this codebase actually uses, so that internal
// packages with no other reason to depend on a third-party assertion
// library don't have to.
package require

import (
	"errors"
	"fmt"
	"reflect"
)

// TestingT is the subset of *testing.T used by this package.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...interface{})
}

func Equal(t TestingT, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		fail(t, fmt.Sprintf("expected %#v, but found %#v", expected, actual), msgAndArgs)
	}
}

func NotEqual(t TestingT, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if reflect.DeepEqual(expected, actual) {
		fail(t, fmt.Sprintf("expected not equal, but both are %#v", actual), msgAndArgs)
	}
}

func True(t TestingT, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !value {
		fail(t, "expected true, but was false", msgAndArgs)
	}
}

func False(t TestingT, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	if value {
		fail(t, "expected false, but was true", msgAndArgs)
	}
}

func Nil(t TestingT, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if actual != nil && !reflect.ValueOf(actual).IsZero() {
		fail(t, fmt.Sprintf("expected nil, but found %#v", actual), msgAndArgs)
	}
}

func NotNil(t TestingT, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if actual == nil {
		fail(t, "expected non-nil, but was nil", msgAndArgs)
	}
}

func NoError(t TestingT, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		fail(t, fmt.Sprintf("expected no error, but found %v", err), msgAndArgs)
	}
}

func Error(t TestingT, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		fail(t, "expected an error, but there was none", msgAndArgs)
	}
}

func EqualError(t TestingT, err error, expected string, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		fail(t, fmt.Sprintf("expected error %q, but there was none", expected), msgAndArgs)
		return
	}
	if err.Error() != expected {
		fail(t, fmt.Sprintf("expected error %q, but found %q", expected, err.Error()), msgAndArgs)
	}
}

func ErrorIs(t TestingT, err, target error, msgAndArgs ...interface{}) {
	t.Helper()
	if !errors.Is(err, target) {
		fail(t, fmt.Sprintf("expected error %v to be %v", err, target), msgAndArgs)
	}
}

func Zero(t TestingT, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	v := reflect.ValueOf(actual)
	if v.IsValid() && !v.IsZero() {
		fail(t, fmt.Sprintf("expected zero value, but found %#v", actual), msgAndArgs)
	}
}

func Len(t TestingT, object interface{}, length int, msgAndArgs ...interface{}) {
	t.Helper()
	v := reflect.ValueOf(object)
	if v.Len() != length {
		fail(t, fmt.Sprintf("expected length %d, but found %d", length, v.Len()), msgAndArgs)
	}
}

// CapturePanic runs fn and returns the recovered panic value as an error, or
// nil if fn did not panic.
func CapturePanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	fn()
	return
}

func fail(t TestingT, msg string, msgAndArgs []interface{}) {
	if len(msgAndArgs) > 0 {
		if format, ok := msgAndArgs[0].(string); ok {
			msg = fmt.Sprintf(msg+": "+format, append([]interface{}{}, msgAndArgs[1:]...)...)
		}
	}
	t.Fatalf(msg)
}
