package records

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseAssignment splits "Field=value" into a field name and a value.
//
// The value is decoded as a JSON literal when it is one (numbers, true, null,
// lists); anything else is taken as a plain string.
func ParseAssignment(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("%w: %q (want Field=value)", ErrInvalidAssignment, s)
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return key, decoded, nil
	}
	return key, raw, nil
}

// ParsePatch builds a patch from a list of assignments. Later assignments win.
func ParsePatch(assignments []string) (Patch, error) {
	p := Patch{}
	for _, a := range assignments {
		k, v, err := ParseAssignment(a)
		if err != nil {
			return nil, err
		}
		Set(p, k, v)
	}
	return p, nil
}
