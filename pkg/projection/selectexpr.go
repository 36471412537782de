package projection

import (
	"reflect"
	"strings"

	"github.com/nrjais/emquery/pkg/member"
)

// ParseSelect reads a comma separated list of dotted paths. Blank text means
// the default projection and yields nil.
func ParseSelect(t reflect.Type, text string) ([]member.Path, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var paths []member.Path
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := member.Resolve(t, part)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func FormatSelect(paths []member.Path) string {
	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}
