package typeconfig

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/samber/lo"
)

// Model is the declarative form of a registry, as read from a config file.
// Type names are matched case-insensitively against the types passed to
// ApplyModel.
type Model struct {
	DefaultMaxPageSize int                  `mapstructure:"default_max_page_size" validate:"min=0"`
	BaseConfigurations map[string]TypeModel `mapstructure:"base_configurations" validate:"dive"`
	TypeConfigurations map[string]TypeModel `mapstructure:"type_configurations" validate:"dive"`
}

type TypeModel struct {
	MaxPageSize          *int                     `mapstructure:"max_page_size" validate:"omitempty,min=0"`
	DefaultOrderBy       string                   `mapstructure:"default_order_by"`
	ExcludeAllProperties bool                     `mapstructure:"exclude_all_properties"`
	Properties           map[string]PropertyModel `mapstructure:"properties"`
}

type PropertyModel struct {
	AllowFilteringAndSorting bool `mapstructure:"allow_filtering_and_sorting"`
	Exclude                  bool `mapstructure:"exclude"`
	IsExtension              bool `mapstructure:"is_extension"`
}

// ApplyModel configures the registry from m. types maps type names to the
// record types they stand for.
func (r *Registry) ApplyModel(m Model, types map[string]reflect.Type) error {
	if m.DefaultMaxPageSize < 0 {
		return qerr.Config("Default max page size cannot be negative: %d", m.DefaultMaxPageSize)
	}
	if m.DefaultMaxPageSize > 0 {
		r.SetDefaultMaxPageSize(m.DefaultMaxPageSize)
	}

	lookup := make(map[string]reflect.Type, len(types))
	for name, t := range types {
		lookup[strings.ToLower(name)] = t
	}

	apply := func(section string, models map[string]TypeModel, configure func(reflect.Type) *Builder) error {
		for _, name := range sortedKeys(models) {
			t, ok := lookup[strings.ToLower(name)]
			if !ok {
				return qerr.Config("Unknown type %s in %s", name, section)
			}
			if err := models[name].apply(configure(t)); err != nil {
				return fmt.Errorf("failed to apply %s %s: %w", section, name, err)
			}
			r.logger.Debug("Applied type configuration", "section", section, "type", name)
		}
		return nil
	}

	if err := apply("base_configurations", m.BaseConfigurations, r.ConfigureBase); err != nil {
		return err
	}
	return apply("type_configurations", m.TypeConfigurations, r.Configure)
}

func (tm TypeModel) apply(b *Builder) error {
	if tm.ExcludeAllProperties {
		b.ExcludeAll()
	}
	for _, name := range sortedKeys(tm.Properties) {
		p := tm.Properties[name]
		if p.AllowFilteringAndSorting {
			b.AllowFilteringAndSorting(name)
		}
		if p.Exclude {
			b.Exclude(name)
		} else if tm.ExcludeAllProperties {
			b.Include(name)
		}
		if p.IsExtension {
			b.Extension(name)
		}
	}
	if tm.MaxPageSize != nil {
		b.MaxPageSize(*tm.MaxPageSize)
	}
	if tm.DefaultOrderBy != "" {
		b.DefaultOrderBy(tm.DefaultOrderBy)
	}
	return b.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
