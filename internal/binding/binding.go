// Package binding interprets declarative output-binding specs: it maps a completed
// job's result, its launch inputs and system variables into the flat parameter
// set a presentation layer renders.
package binding

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
)

// Strategy selects where a bound parameter's value comes from.
type Strategy int

const (
	SystemVariable Strategy = iota + 1
	ConstantValue
	InputParameter
	OutputPath
)

func (s Strategy) String() string {
	switch s {
	case SystemVariable:
		return "system_variable"
	case ConstantValue:
		return "constant_value"
	case InputParameter:
		return "input_parameter"
	case OutputPath:
		return "service_method_output_path"
	default:
		return "unknown"
	}
}

// Binding maps one target parameter to exactly one resolution strategy.
type Binding struct {
	Target   string
	Strategy Strategy
	Name     string // system variable name or input parameter key
	Value    any    // constant value
	Path     Path   // result path

	// pathErr holds a path that failed to parse; it resolves to nil at render time.
	pathErr error
}

// Spec is an ordered list of bindings. Later bindings win on duplicate targets.
type Spec []Binding

// BindSystemVariable binds target to the system variable name.
func BindSystemVariable(target, name string) Binding {
	return Binding{Target: target, Strategy: SystemVariable, Name: name}
}

// BindConstant binds target to v verbatim.
func BindConstant(target string, v any) Binding {
	return Binding{Target: target, Strategy: ConstantValue, Value: v}
}

// BindInput binds target to the job input key.
func BindInput(target, key string) Binding {
	return Binding{Target: target, Strategy: InputParameter, Name: key}
}

// BindOutputPath binds target to a dotted path into the job result. A malformed
// expr is kept and resolves to nil.
func BindOutputPath(target, expr string) Binding {
	p, err := ParsePath(expr)
	return Binding{Target: target, Strategy: OutputPath, Path: p, pathErr: err}
}

// PathErr returns the parse error of an OutputPath binding, if any.
func (b Binding) PathErr() error {
	return b.pathErr
}

// Keys recognised in spec documents. The system variable key has two spellings.
const (
	keyTarget         = "target_property"
	keySystemVariable = "narrative_system_variable"
	keySystemVarAlias = "system_variable"
	keyConstant       = "constant_value"
	keyInput          = "input_parameter"
	keyOutputPath     = "service_method_output_path"
)

// UnmarshalYAML decodes a binding mapping and rejects documents that declare
// zero or several strategies.
func (b *Binding) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return apperrors.InvalidBinding("", fmt.Sprintf("line %d: binding must be a mapping", node.Line))
	}

	var out Binding
	var strategies []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case keyTarget:
			if err := val.Decode(&out.Target); err != nil {
				return apperrors.InvalidBinding("", fmt.Sprintf("line %d: %s must be a string", val.Line, keyTarget))
			}
		case keySystemVariable, keySystemVarAlias:
			strategies = append(strategies, key)
			out.Strategy = SystemVariable
			if err := val.Decode(&out.Name); err != nil {
				return apperrors.InvalidBinding(out.Target, fmt.Sprintf("%s must be a string", key))
			}
		case keyConstant:
			strategies = append(strategies, key)
			out.Strategy = ConstantValue
			if err := val.Decode(&out.Value); err != nil {
				return apperrors.InvalidBinding(out.Target, fmt.Sprintf("%s: %v", key, err))
			}
		case keyInput:
			strategies = append(strategies, key)
			out.Strategy = InputParameter
			if err := val.Decode(&out.Name); err != nil {
				return apperrors.InvalidBinding(out.Target, fmt.Sprintf("%s must be a string", key))
			}
		case keyOutputPath:
			strategies = append(strategies, key)
			out.Strategy = OutputPath
			out.Path, out.pathErr = pathFromNode(val)
		}
	}

	if out.Target == "" {
		return apperrors.InvalidBinding("", fmt.Sprintf("line %d: %s is required", node.Line, keyTarget))
	}
	switch len(strategies) {
	case 0:
		return apperrors.InvalidBinding(out.Target, "no resolution strategy declared")
	case 1:
	default:
		return apperrors.InvalidBinding(out.Target,
			fmt.Sprintf("more than one resolution strategy declared (%s)", strings.Join(strategies, ", ")))
	}

	*b = out
	return nil
}

// pathFromNode accepts a dotted string or a sequence of keys and indices.
func pathFromNode(node *yaml.Node) (Path, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return ParsePath(node.Value)
	case yaml.SequenceNode:
		p := make(Path, 0, len(node.Content))
		for _, el := range node.Content {
			if el.Kind != yaml.ScalarNode {
				return nil, apperrors.MalformedPath(node.Value, fmt.Sprintf("line %d: path steps must be scalars", el.Line))
			}
			p = append(p, keyStep(el.Value))
		}
		return p, nil
	default:
		return nil, apperrors.MalformedPath("", fmt.Sprintf("line %d: path must be a string or a list", node.Line))
	}
}

// ParseSpec decodes a YAML (or JSON) list of bindings.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse output binding spec: %w", err)
	}
	if spec == nil {
		spec = Spec{}
	}
	return spec, nil
}
