// Package qerr holds the error kinds shared by the query engine.
//
// Parse errors reject malformed query text, policy errors reject well-formed
// queries the type configuration does not allow, and configuration errors
// abort startup.
package qerr

import (
	"errors"
	"fmt"
)

var (
	ErrParse  = errors.New("query parse error")
	ErrPolicy = errors.New("query policy violation")
	ErrConfig = errors.New("invalid query configuration")
)

// ParseError reports query text that could not be understood.
type ParseError struct {
	// Field is the query key the text came from (filter, select, ...), if known.
	Field   string
	Query   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// PolicyError reports a query that references fields or paging the type
// configuration forbids.
type PolicyError struct {
	Field   string
	Query   string
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicy
}

// ConfigError reports an invalid type configuration.
type ConfigError struct {
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func Parse(query, format string, args ...any) *ParseError {
	return &ParseError{Query: query, Message: fmt.Sprintf(format, args...)}
}

func Policy(query, format string, args ...any) *PolicyError {
	return &PolicyError{Query: query, Message: fmt.Sprintf(format, args...)}
}

func Config(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// WithField stamps the query key and fragment on parse and policy errors.
// Errors that already carry a field are returned unchanged.
func WithField(err error, field, query string) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		if pe.Field == "" {
			pe.Field = field
		}
		if pe.Query == "" {
			pe.Query = query
		}
		return err
	}
	var po *PolicyError
	if errors.As(err, &po) {
		if po.Field == "" {
			po.Field = field
		}
		if po.Query == "" {
			po.Query = query
		}
	}
	return err
}
