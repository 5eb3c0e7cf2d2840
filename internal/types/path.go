package types

import (
	"fmt"
	"strings"
)

// PathTemplate is a collection path pattern such as "posts/{postId}".
// The last segment must be a parameter; its value is the document identifier.
type PathTemplate struct {
	raw      string
	segments []string
}

func ParsePathTemplate(s string) (PathTemplate, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return PathTemplate{}, fmt.Errorf("empty path template")
	}

	parts := strings.Split(s, "/")
	seen := make(map[string]bool)
	for _, part := range parts {
		if part == "" {
			return PathTemplate{}, fmt.Errorf("invalid path template %q: empty segment", s)
		}
		if name, ok := paramName(part); ok {
			if name == "" || seen[name] {
				return PathTemplate{}, fmt.Errorf("invalid path template %q: bad parameter %q", s, part)
			}
			seen[name] = true
		}
	}
	if _, ok := paramName(parts[len(parts)-1]); !ok {
		return PathTemplate{}, fmt.Errorf("invalid path template %q: last segment must be a parameter", s)
	}

	return PathTemplate{raw: s, segments: parts}, nil
}

func MustParsePathTemplate(s string) PathTemplate {
	t, err := ParsePathTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t PathTemplate) String() string {
	return t.raw
}

// IDParam is the name of the parameter holding the document identifier.
func (t PathTemplate) IDParam() string {
	name, _ := paramName(t.segments[len(t.segments)-1])
	return name
}

// Match reports whether path fits the template and returns the parameter values.
func (t PathTemplate) Match(path string) (map[string]string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != len(t.segments) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range t.segments {
		if name, ok := paramName(seg); ok {
			if parts[i] == "" {
				return nil, false
			}
			params[name] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// Expand builds a document path from parameter values.
func (t PathTemplate) Expand(params map[string]string) (string, error) {
	parts := make([]string, len(t.segments))
	for i, seg := range t.segments {
		name, ok := paramName(seg)
		if !ok {
			parts[i] = seg
			continue
		}
		v := params[name]
		if v == "" || strings.Contains(v, "/") {
			return "", fmt.Errorf("missing or invalid value for %q in %q", name, t.raw)
		}
		parts[i] = v
	}
	return strings.Join(parts, "/"), nil
}

func paramName(seg string) (string, bool) {
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
