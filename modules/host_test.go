package modules

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/errors"
)

type point struct {
	X int
	Y int
}

type geometry struct{}

func (geometry) Namespace() string { return "Geometry" }

func (geometry) AsyncFunctions() []string { return []string{"slowSum"} }

func (geometry) Constants() map[string]any { return map[string]any{"origin": "0,0"} }

func (geometry) Add(a, b int) int { return a + b }

func (geometry) Describe(p point) string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func (geometry) Scale(factor float64, values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}

func (geometry) Check(n int) error {
	if n < 0 {
		return stderrors.New("negative")
	}
	return nil
}

func (geometry) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, stderrors.New("division by zero")
	}
	return a / b, nil
}

func (geometry) HasContext(ctx context.Context) bool { return ctx != nil }

func (geometry) SlowSum(ctx context.Context, values []int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

func (geometry) GetHTTPURL() string { return "http://localhost" }

func TestFromHost(t *testing.T) {
	rt := newRuntime(t)
	reg := NewRegistry()
	require.NoError(t, reg.RegisterHost(geometry{}))
	require.NoError(t, reg.Install(context.Background(), rt))

	v := eval(t, rt, `[
		Core.Geometry.origin,
		Core.Geometry.add(2, 3),
		Core.Geometry.add(2),
		Core.Geometry.describe({X: 1, Y: 2}),
		Core.Geometry.scale(2, [1, 2.5]).join('|'),
		Core.Geometry.divide(9, 3),
		Core.Geometry.hasContext(),
		Core.Geometry.getHTTPURL(),
		Core.Geometry.check(1) === undefined,
		typeof Core.Geometry.namespace,
	].join(',')`)
	assert.Equal(t, "0,0,5,2,(1,2),2|5,3,true,http://localhost,true,undefined", v.AsString())
}

func TestFromHost_Errors(t *testing.T) {
	rt := newRuntime(t)
	reg := NewRegistry()
	require.NoError(t, reg.RegisterHost(geometry{}))
	require.NoError(t, reg.Install(context.Background(), rt))

	v := eval(t, rt, `
		const msgs = [];
		for (const f of [() => Core.Geometry.check(-1), () => Core.Geometry.divide(1, 0), () => Core.Geometry.describe('x')]) {
			try { f(); msgs.push('ok') } catch (e) { msgs.push(e.code) }
		}
		msgs.join(',')
	`)
	assert.Equal(t, "host.native_throw,host.native_throw,value.type_mismatch", v.AsString())
}

func TestFromHost_Async(t *testing.T) {
	rt := newRuntime(t)
	reg := NewRegistry()
	require.NoError(t, reg.RegisterHost(geometry{}))
	require.NoError(t, reg.Install(context.Background(), rt))

	v, err := rt.EvalAsync(context.Background(), "Core.Geometry.slowSum([1, 2, 3])", "sum.js")
	require.NoError(t, err)
	assert.Equal(t, int64(6), v.AsInt())

	v = eval(t, rt, "Core.Geometry.slowSum([]) instanceof Promise")
	assert.True(t, v.AsBool())
}

type emptyHost struct{}

func (emptyHost) Namespace() string { return "" }

type variadicHost struct{}

func (variadicHost) Namespace() string { return "V" }

func (variadicHost) Join(parts ...string) string { return fmt.Sprint(parts) }

type badResultsHost struct{}

func (badResultsHost) Namespace() string { return "B" }

func (badResultsHost) Pair() (int, int) { return 1, 2 }

type nilHandlerHost struct{}

func (nilHandlerHost) Namespace() string { return "N" }

func (nilHandlerHost) Register() map[string]any {
	return map[string]any{"missing": nil}
}

func TestFromHost_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		host   Host
		kind   errors.Kind
		detail string
	}{
		{"empty namespace", emptyHost{}, errors.KindInvalidInput, "namespace cannot be empty"},
		{"variadic", variadicHost{}, errors.KindRegistration, "variadic functions are not supported"},
		{"second result not error", badResultsHost{}, errors.KindRegistration, "second result must be error"},
		{"nil handler", nilHandlerHost{}, errors.KindTypeMismatch, "handler must be a function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromHost(tt.host)
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.detail, e.Detail)
		})
	}
}

type explicitHost struct{}

func (explicitHost) Namespace() string { return "Explicit" }

func (explicitHost) Register() map[string]any {
	return map[string]any{
		"get-value": func() int { return 42 },
	}
}

func TestFromHost_ExplicitRegistrar(t *testing.T) {
	def, err := FromHost(explicitHost{})
	require.NoError(t, err)
	require.Contains(t, def.Functions, "get-value")

	rt := newRuntime(t)
	install(t, rt, def)
	v := eval(t, rt, "Core.Explicit['get-value']()")
	assert.Equal(t, int64(42), v.AsInt())
}

func TestToCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add", "add"},
		{"GetValue", "getValue"},
		{"HTTPServer", "httpServer"},
		{"GetHTTPURL", "getHTTPURL"},
		{"ID", "id"},
		{"X", "x"},
		{"already", "already"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, toCamelCase(tt.in))
		})
	}
}
