package catalog

import (
	"fmt"
	"strconv"
)

// ValidateParams checks user inputs against the model's parameter schema and
// returns the complete input map for submission: defaults filled in, string
// inputs coerced to the declared numeric/boolean types, enum membership and
// numeric ranges enforced. Unknown parameter names are rejected.
func (m Model) ValidateParams(input map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m.Parameters))
	byName := make(map[string]Parameter, len(m.Parameters))

	for _, p := range m.Parameters {
		byName[p.Name] = p
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}

	for name, value := range input {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		coerced, err := coerce(p, value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = coerced
	}

	for _, p := range m.Parameters {
		if p.Required {
			if _, ok := out[p.Name]; !ok {
				return nil, fmt.Errorf("parameter %q is required", p.Name)
			}
		}
	}
	return out, nil
}

func coerce(p Parameter, value interface{}) (interface{}, error) {
	switch p.Type {
	case "integer":
		n, err := toInt(value)
		if err != nil {
			return nil, err
		}
		if err := checkRange(p, float64(n)); err != nil {
			return nil, err
		}
		return n, nil
	case "number":
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		if err := checkRange(p, f); err != nil {
			return nil, err
		}
		return f, nil
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)
	case "enum":
		for _, opt := range p.Options {
			if equalOption(opt, value) {
				return opt, nil
			}
		}
		return nil, fmt.Errorf("value %v is not one of the allowed options", value)
	case "string", "":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", p.Type)
	}
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", value)
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", value)
}

func checkRange(p Parameter, v float64) error {
	if p.Min != nil && v < *p.Min {
		return fmt.Errorf("value %v is below minimum %v", v, *p.Min)
	}
	if p.Max != nil && v > *p.Max {
		return fmt.Errorf("value %v is above maximum %v", v, *p.Max)
	}
	return nil
}

func equalOption(opt, value interface{}) bool {
	if opt == value {
		return true
	}
	// JSON decodes numeric options as float64; accept matching string or
	// numeric forms of the same option.
	os, oks := opt.(string)
	vs, vks := value.(string)
	if oks && vks {
		return os == vs
	}
	of, okf := toFloatLoose(opt)
	vf, vkf := toFloatLoose(value)
	return okf && vkf && of == vf
}

func toFloatLoose(v interface{}) (float64, bool) {
	f, err := toFloat(v)
	return f, err == nil
}
