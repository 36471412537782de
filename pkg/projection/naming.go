package projection

import (
	"strings"
	"unicode"

	"github.com/nrjais/emquery/pkg/member"
)

// Key is the output key of a field: its name in lower camel case, with a
// leading acronym lowered as a whole (ID -> id, URLPath -> urlPath).
func Key(name string) string {
	r := []rune(name)
	for i := 0; i < len(r) && unicode.IsUpper(r[i]); i++ {
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// FlatKey is the key of a multi-segment select path: the segment keys
// joined by underscores, so Customer.Name becomes customer_name.
func FlatKey(p member.Path) string {
	return flatKey(p.String())
}

func flatKey(dotted string) string {
	parts := strings.Split(dotted, ".")
	for i, part := range parts {
		parts[i] = Key(strings.TrimSpace(part))
	}
	return strings.Join(parts, "_")
}
