package typeconfig

import (
	"fmt"
	"reflect"

	"github.com/nrjais/emquery/pkg/member"
)

// Attribute is metadata attached to a field at configuration time and read
// back when results are rendered.
type Attribute interface {
	// Validate reports whether the attribute can annotate f.
	Validate(f reflect.StructField) error
}

// DateFormat renders a time field with Layout instead of RFC 3339.
type DateFormat struct {
	Layout string
}

func (d DateFormat) Validate(f reflect.StructField) error {
	if d.Layout == "" {
		return fmt.Errorf("date format layout is empty")
	}
	if member.KindOf(f.Type) != member.Time {
		return fmt.Errorf("field %s is %s, not a time", f.Name, f.Type)
	}
	return nil
}
