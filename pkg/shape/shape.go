// Package shape describes the runtime shape of projected records and holds
// the ordered Record values a projection produces.
package shape

import (
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/nrjais/emquery/pkg/member"
)

type DataType string

const (
	Any      DataType = "any"
	Bool     DataType = "bool"
	Number   DataType = "number"
	Integer  DataType = "integer"
	Text     DataType = "text"
	DateTime DataType = "datetime"
	Object   DataType = "object"
)

// Field is one output key. Source is the path read from the record the
// parent shape applies to; Shape is set for related records.
type Field struct {
	Name       string      `json:"name" validate:"required,min=1,max=255"`
	Path       string      `json:"path" validate:"required,min=1,max=255"`
	Type       DataType    `json:"type" validate:"required,oneof=any bool number integer text datetime object"`
	Collection bool        `json:"collection,omitempty"`
	Format     string      `json:"format,omitempty"`
	Shape      *Shape      `json:"shape,omitempty"`
	Source     member.Path `json:"-"`
}

// Shape is an ordered list of output fields. Names are unique per level.
type Shape struct {
	Type   string  `json:"type" validate:"required"`
	Fields []Field `json:"fields" validate:"unique=Name,dive"`
}

var validate = validator.New()

// Validate checks a shape before it is published as a schema.
func (s *Shape) Validate() error {
	return validate.Struct(s)
}

func (s *Shape) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

func (s *Shape) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func DataTypeOf(t reflect.Type) DataType {
	switch member.KindOf(t) {
	case member.Bool:
		return Bool
	case member.Int, member.Uint:
		return Integer
	case member.Float:
		return Number
	case member.String:
		return Text
	case member.Time:
		return DateTime
	case member.Struct, member.Collection:
		return Object
	}
	return Any
}
