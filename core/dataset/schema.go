// Package dataset describes the attribute layout shared by training and query
// instances, and stores instances in a gonum matrix.
//
// Every value is a float64. Numeric attributes store their value directly;
// symbolic attributes store the index of the symbol in Attribute.Values.
// A missing value of either kind is NaN.
package dataset

import (
	"fmt"
	"math"
	"strings"

	"github.com/YuminosukeSato/softclust/pkg/errors"
)

// AttributeKind tells numeric and symbolic attributes apart.
type AttributeKind int

const (
	// Numeric attributes hold a real-valued scalar.
	Numeric AttributeKind = iota
	// Symbolic attributes hold one of a finite, ordered set of symbols.
	Symbolic
)

func (k AttributeKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Symbolic:
		return "symbolic"
	default:
		return fmt.Sprintf("AttributeKind(%d)", int(k))
	}
}

// Missing returns the marker used for a missing attribute value.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v marks a missing value.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Attribute describes one column.
type Attribute struct {
	Name   string
	Kind   AttributeKind
	Values []string // symbols, only for Symbolic
}

// NewNumeric returns a numeric attribute descriptor.
func NewNumeric(name string) Attribute {
	return Attribute{Name: name, Kind: Numeric}
}

// NewSymbolic returns a symbolic attribute descriptor over values. The
// position of a symbol in values is its stable index.
func NewSymbolic(name string, values ...string) Attribute {
	vs := make([]string, len(values))
	copy(vs, values)
	return Attribute{Name: name, Kind: Symbolic, Values: vs}
}

// IsNumeric reports whether the attribute is numeric.
func (a Attribute) IsNumeric() bool { return a.Kind == Numeric }

// IsSymbolic reports whether the attribute is symbolic.
func (a Attribute) IsSymbolic() bool { return a.Kind == Symbolic }

// NumValues is the number of declared symbols (0 for numeric attributes).
func (a Attribute) NumValues() int {
	return len(a.Values)
}

// IndexOf returns the index of symbol, if declared.
func (a Attribute) IndexOf(symbol string) (int, bool) {
	for i, v := range a.Values {
		if v == symbol {
			return i, true
		}
	}
	return -1, false
}

// Value returns the encoded value of symbol, or an error if the symbol is
// not declared for a.
func (a Attribute) Value(symbol string) (float64, error) {
	if !a.IsSymbolic() {
		return 0, errors.NewSchemaError("Attribute.Value", a.Name, "attribute is not symbolic", symbol)
	}
	idx, ok := a.IndexOf(symbol)
	if !ok {
		return 0, errors.NewSchemaError("Attribute.Value", a.Name, "undeclared symbol", symbol)
	}
	return float64(idx), nil
}

// checkValue validates a single non-missing value against the attribute.
func (a Attribute) checkValue(op string, v float64) error {
	if IsMissing(v) {
		return nil
	}
	if a.IsNumeric() {
		if math.IsInf(v, 0) {
			return errors.NewSchemaError(op, a.Name, "numeric value must be finite", v)
		}
		return nil
	}
	if v != math.Trunc(v) || v < 0 || v >= float64(len(a.Values)) {
		return errors.NewSchemaError(op, a.Name,
			fmt.Sprintf("symbol index out of range [0, %d)", len(a.Values)), v)
	}
	return nil
}

func (a Attribute) equal(o Attribute) bool {
	if a.Name != o.Name || a.Kind != o.Kind || len(a.Values) != len(o.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

// Schema is the ordered attribute layout of a dataset.
type Schema struct {
	Attributes []Attribute
}

// NewSchema builds a schema. Attribute names must be unique and symbolic
// attributes must declare at least one symbol.
func NewSchema(attrs ...Attribute) (*Schema, error) {
	if err := validateAttributes("NewSchema", attrs); err != nil {
		return nil, err
	}
	return &Schema{Attributes: cloneAttributes(attrs)}, nil
}

// Validate re-checks the NewSchema rules. Attributes is exported, so a schema
// built as a literal has not been checked yet.
func (s *Schema) Validate() error {
	if s == nil {
		return errors.NewValueError("Schema.Validate", "schema is nil")
	}
	return validateAttributes("Schema.Validate", s.Attributes)
}

func validateAttributes(op string, attrs []Attribute) error {
	seen := make(map[string]struct{}, len(attrs))
	for i, a := range attrs {
		if _, dup := seen[a.Name]; dup {
			return errors.NewSchemaError(op, a.Name, "duplicate attribute name", i)
		}
		seen[a.Name] = struct{}{}
		if a.Kind != Numeric && a.Kind != Symbolic {
			return errors.NewSchemaError(op, a.Name, "unknown attribute kind", a.Kind)
		}
		if a.IsSymbolic() && len(a.Values) == 0 {
			return errors.NewSchemaError(op, a.Name, "symbolic attribute declares no symbols", 0)
		}
	}
	return nil
}

func cloneAttributes(attrs []Attribute) []Attribute {
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = a
		if a.Values != nil {
			out[i].Values = append([]string(nil), a.Values...)
		}
	}
	return out
}

// NumAttributes returns the number of attributes.
func (s *Schema) NumAttributes() int {
	return len(s.Attributes)
}

// Attribute returns the i-th attribute descriptor.
func (s *Schema) Attribute(i int) Attribute {
	return s.Attributes[i]
}

// Equal reports whether both schemas declare the same attributes in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Attributes) != len(o.Attributes) {
		return false
	}
	for i := range s.Attributes {
		if !s.Attributes[i].equal(o.Attributes[i]) {
			return false
		}
	}
	return true
}

// CheckInstance verifies that inst has one value per attribute and that every
// non-missing symbolic value is a declared symbol index.
func (s *Schema) CheckInstance(inst []float64) error {
	if len(inst) != len(s.Attributes) {
		return errors.NewDimensionError("Schema.CheckInstance", len(s.Attributes), len(inst), 1)
	}
	for j, a := range s.Attributes {
		if err := a.checkValue("Schema.CheckInstance", inst[j]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy. It does not validate.
func (s *Schema) Clone() *Schema {
	return &Schema{Attributes: cloneAttributes(s.Attributes)}
}

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString("Schema(")
	for i, a := range s.Attributes {
		if i > 0 {
			b.WriteString(", ")
		}
		if a.IsSymbolic() {
			fmt.Fprintf(&b, "%s {%s}", a.Name, strings.Join(a.Values, ","))
		} else {
			fmt.Fprintf(&b, "%s numeric", a.Name)
		}
	}
	b.WriteString(")")
	return b.String()
}
