package binding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
)

// Step is one key-or-index step of a Path.
type Step struct {
	Key   string
	Index int // -1 when Key is not a non-negative integer
}

// Path walks a decoded JSON tree (maps, slices, scalars).
// The zero Path refers to the whole tree.
type Path []Step

func keyStep(key string) Step {
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 || strings.HasPrefix(key, "+") {
		return Step{Key: key, Index: -1}
	}
	return Step{Key: key, Index: n}
}

// ParsePath parses a dotted path such as "result.0.id" or "result[0].id".
func ParsePath(expr string) (Path, error) {
	steps := Path{}
	i := 0
	for i < len(expr) {
		if expr[i] == '[' {
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				return nil, apperrors.MalformedPath(expr, "unclosed '['")
			}
			tok := expr[i+1 : i+end]
			n, err := strconv.Atoi(tok)
			if err != nil || n < 0 {
				return nil, apperrors.MalformedPath(expr, fmt.Sprintf("index %q is not a non-negative integer", tok))
			}
			steps = append(steps, Step{Key: tok, Index: n})
			i += end + 1
			if i == len(expr) {
				break
			}
			switch expr[i] {
			case '.':
				i++
				if i == len(expr) {
					return nil, apperrors.MalformedPath(expr, "trailing '.'")
				}
			case '[':
			default:
				return nil, apperrors.MalformedPath(expr, "expected '.' or '[' after ']'")
			}
			continue
		}

		j := i
		for j < len(expr) && expr[j] != '.' && expr[j] != '[' {
			if expr[j] == ']' {
				return nil, apperrors.MalformedPath(expr, "unexpected ']'")
			}
			j++
		}
		if j == i {
			return nil, apperrors.MalformedPath(expr, "empty segment")
		}
		steps = append(steps, keyStep(expr[i:j]))
		i = j
		if i < len(expr) && expr[i] == '.' {
			i++
			if i == len(expr) {
				return nil, apperrors.MalformedPath(expr, "trailing '.'")
			}
		}
	}
	return steps, nil
}

// Eval walks tree along p. ok is false when any step is missing: an absent key,
// an out-of-range or non-numeric index, or a scalar reached before the path ends.
func (p Path) Eval(tree any) (value any, ok bool) {
	cur := tree
	for _, st := range p {
		switch node := cur.(type) {
		case map[string]any:
			v, found := node[st.Key]
			if !found {
				return nil, false
			}
			cur = v
		case []any:
			if st.Index < 0 || st.Index >= len(node) {
				return nil, false
			}
			cur = node[st.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// String renders p in dotted form.
func (p Path) String() string {
	keys := make([]string, len(p))
	for i, st := range p {
		keys[i] = st.Key
	}
	return strings.Join(keys, ".")
}
