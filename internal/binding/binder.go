package binding

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kiranshivaraju/jobtrack/internal/observability"
)

// Params is the flat parameter mapping handed to the presentation layer.
type Params map[string]any

// LookupFunc resolves a system variable such as the current workspace.
type LookupFunc func(name string) (any, bool)

// Vars is a fixed set of system variables.
type Vars map[string]any

// Lookup implements LookupFunc.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Binder resolves output-binding specs. The zero value is ready to use.
type Binder struct {
	metrics *observability.Metrics
}

// NewBinder creates a Binder that reports degraded fields to metrics.
func NewBinder(metrics *observability.Metrics) *Binder {
	return &Binder{metrics: metrics}
}

// Resolve evaluates spec in order and returns one entry per target. A binding
// whose source is absent (unset system variable, missing input, path miss or
// malformed path) yields nil for its target rather than failing the render.
func (b *Binder) Resolve(ctx context.Context, spec Spec, result any, inputs map[string]any, vars LookupFunc) Params {
	out := make(Params, len(spec))
	for _, bd := range spec {
		v, ok := b.resolveOne(bd, result, inputs, vars)
		if !ok {
			b.metrics.RecordBindingMiss(ctx, bd.Strategy.String())
			slog.DebugContext(ctx, "output parameter unresolved",
				"target", bd.Target, "strategy", bd.Strategy.String())
		}
		out[bd.Target] = v
	}
	return out
}

func (b *Binder) resolveOne(bd Binding, result any, inputs map[string]any, vars LookupFunc) (any, bool) {
	switch bd.Strategy {
	case SystemVariable:
		if vars == nil {
			return nil, false
		}
		return vars(bd.Name)
	case ConstantValue:
		return bd.Value, true
	case InputParameter:
		v, ok := inputs[bd.Name]
		return v, ok
	case OutputPath:
		if bd.pathErr != nil {
			return nil, false
		}
		return bd.Path.Eval(result)
	default:
		return nil, false
	}
}

// DecodeResult turns a raw result payload into a tree Path.Eval can walk.
func DecodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
