package state

import (
	"errors"
	"fmt"
	"sort"
)

// Schema errors
var (
	ErrMissingField = errors.New("required field missing")
	ErrUnknownField = errors.New("field not in schema")
	ErrInvalidValue = errors.New("invalid field value")
)

// validatable is implemented by closed enumerations.
type validatable interface {
	Validate() error
}

// Field declares one named, typed State field.
type Field struct {
	Name     string
	Optional bool
	// Check rejects values of the wrong type or outside a closed set.
	// A nil Check accepts any value.
	Check func(v any) error
}

// Of declares a required field holding values of type T. When T implements
// Validate() error, the value is validated as well.
func Of[T any](name string) Field {
	return Field{
		Name: name,
		Check: func(v any) error {
			t, ok := v.(T)
			if !ok {
				var want T
				return fmt.Errorf("%w: %s must be %T, got %T", ErrInvalidValue, name, want, v)
			}
			if vt, ok := any(t).(validatable); ok {
				if err := vt.Validate(); err != nil {
					return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
				}
			}
			return nil
		},
	}
}

// Optional marks a field as not required.
func Optional(f Field) Field {
	f.Optional = true
	return f
}

// Schema is a named set of fields. Schemas are values; the derive methods
// return new schemas and leave the receiver untouched.
type Schema struct {
	name   string
	fields map[string]Field
	order  []string
}

// NewSchema builds a schema from its fields. A later field with the same
// name replaces an earlier one.
func NewSchema(name string, fields ...Field) Schema {
	s := Schema{name: name, fields: make(map[string]Field, len(fields))}
	return s.with(fields)
}

func (s Schema) with(fields []Field) Schema {
	for _, f := range fields {
		if _, exists := s.fields[f.Name]; !exists {
			s.order = append(s.order, f.Name)
		}
		s.fields[f.Name] = f
	}
	return s
}

func (s Schema) clone(name string) Schema {
	c := Schema{name: name, fields: make(map[string]Field, len(s.fields)), order: make([]string, len(s.order))}
	copy(c.order, s.order)
	for k, v := range s.fields {
		c.fields[k] = v
	}
	return c
}

// Name returns the schema name.
func (s Schema) Name() string { return s.name }

// Extend returns a copy named name with fields added or replaced.
func (s Schema) Extend(name string, fields ...Field) Schema {
	return s.clone(name).with(fields)
}

// Without returns a copy named name with the given fields removed.
func (s Schema) Without(name string, names ...string) Schema {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	c := Schema{name: name, fields: make(map[string]Field, len(s.fields))}
	for _, n := range s.order {
		if drop[n] {
			continue
		}
		c.order = append(c.order, n)
		c.fields[n] = s.fields[n]
	}
	return c
}

// Union returns a copy named name holding the fields of s and other.
// Fields of other win on conflict.
func (s Schema) Union(name string, other Schema) Schema {
	c := s.clone(name)
	for _, n := range other.order {
		c = c.with([]Field{other.fields[n]})
	}
	return c
}

// Has reports whether the schema declares name.
func (s Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Field returns the declaration of name.
func (s Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Names returns all field names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Required returns the names of the non-optional fields, sorted.
func (s Schema) Required() []string {
	var out []string
	for _, n := range s.order {
		if !s.fields[n].Optional {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// CheckValue validates a single value against the field declaration.
func (s Schema) CheckValue(name string, v any) error {
	f, ok := s.fields[name]
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrUnknownField, name, s.name)
	}
	if f.Check == nil {
		return nil
	}
	return f.Check(v)
}

// Validate checks that every required field is present and that every
// declared field present in st holds a valid value. Fields st carries but
// the schema does not declare are ignored.
func (s Schema) Validate(st State) error {
	var errs []error
	for _, n := range s.Required() {
		if !st.Has(n) {
			errs = append(errs, fmt.Errorf("%w: %q in %s", ErrMissingField, n, s.name))
		}
	}
	for _, n := range s.order {
		v, ok := st.Get(n)
		if !ok {
			continue
		}
		if err := s.CheckValue(n, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Project returns the fields of st that the schema declares.
func (s Schema) Project(st State) Delta {
	out := make(Delta, len(s.order))
	for _, n := range s.order {
		if v, ok := st.Get(n); ok {
			out[n] = v
		}
	}
	return out
}
