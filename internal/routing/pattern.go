package routing

import "strings"

// PathPattern matches templated paths such as
// /endorsement/api/endorsements/{endorsement_id}/sign. A {name} segment
// matches exactly one non-empty path segment; every other segment must
// match literally. Trailing slashes never match.
type PathPattern struct {
	template string
	segments []patternSegment
}

type patternSegment struct {
	literal string
	param   string
}

// parsePathPattern reports ok=false both for malformed templates and for
// plain paths without a parameter, which callers route as exact matches.
func parsePathPattern(template string) (PathPattern, bool) {
	if !strings.HasPrefix(template, "/") || !strings.Contains(template, "{") {
		return PathPattern{}, false
	}

	var segments []patternSegment
	for _, part := range strings.Split(template[1:], "/") {
		switch {
		case part == "":
			return PathPattern{}, false
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" {
				return PathPattern{}, false
			}
			segments = append(segments, patternSegment{param: name})
		case strings.ContainsAny(part, "{}"):
			return PathPattern{}, false
		default:
			segments = append(segments, patternSegment{literal: part})
		}
	}
	return PathPattern{template: template, segments: segments}, true
}

func (p PathPattern) Match(path string) bool {
	if p.template == "" || !strings.HasPrefix(path, "/") {
		return false
	}

	rest := path[1:]
	for i, seg := range p.segments {
		part, tail, more := strings.Cut(rest, "/")
		if part == "" {
			return false
		}
		if seg.param == "" && part != seg.literal {
			return false
		}
		if i == len(p.segments)-1 {
			return !more
		}
		if !more {
			return false
		}
		rest = tail
	}
	return false
}
