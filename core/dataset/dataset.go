package dataset

import (
	"github.com/YuminosukeSato/softclust/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a set of instances conforming to one schema.
// Rows are instances, columns are attributes, missing values are NaN.
type Dataset struct {
	schema *Schema
	x      *mat.Dense
}

// New builds a dataset from row slices. Every row is validated against schema.
func New(schema *Schema, rows [][]float64) (*Dataset, error) {
	if schema == nil {
		return nil, errors.NewValueError("dataset.New", "schema is nil")
	}
	p := schema.NumAttributes()
	if len(rows) == 0 || p == 0 {
		return &Dataset{schema: schema}, nil
	}
	data := make([]float64, 0, len(rows)*p)
	for i, row := range rows {
		if len(row) != p {
			return nil, errors.Wrapf(errors.NewDimensionError("dataset.New", p, len(row), 1), "row %d", i)
		}
		if err := schema.CheckInstance(row); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		data = append(data, row...)
	}
	return &Dataset{schema: schema, x: mat.NewDense(len(rows), p, data)}, nil
}

// FromMatrix builds a dataset over a copy of X.
func FromMatrix(schema *Schema, X mat.Matrix) (*Dataset, error) {
	if schema == nil {
		return nil, errors.NewValueError("dataset.FromMatrix", "schema is nil")
	}
	r, c := X.Dims()
	if c != schema.NumAttributes() {
		return nil, errors.NewDimensionError("dataset.FromMatrix", schema.NumAttributes(), c, 1)
	}
	if r == 0 {
		return &Dataset{schema: schema}, nil
	}
	ds := &Dataset{schema: schema, x: mat.DenseCopyOf(X)}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Schema returns the dataset's schema.
func (d *Dataset) Schema() *Schema {
	return d.schema
}

// NumInstances returns the number of rows.
func (d *Dataset) NumInstances() int {
	if d == nil || d.x == nil {
		return 0
	}
	r, _ := d.x.Dims()
	return r
}

// NumAttributes returns the number of columns.
func (d *Dataset) NumAttributes() int {
	return d.schema.NumAttributes()
}

// Instance returns a copy of row i.
func (d *Dataset) Instance(i int) []float64 {
	return mat.Row(nil, i, d.x)
}

// RawInstance returns row i without copying. Callers must not modify it.
func (d *Dataset) RawInstance(i int) []float64 {
	return d.x.RawRowView(i)
}

// Value returns the value of attribute j in row i.
func (d *Dataset) Value(i, j int) float64 {
	return d.x.At(i, j)
}

// IsMissing reports whether attribute j of row i is missing.
func (d *Dataset) IsMissing(i, j int) bool {
	return IsMissing(d.x.At(i, j))
}

// Matrix returns the underlying matrix; nil for an empty dataset.
func (d *Dataset) Matrix() mat.Matrix {
	if d.x == nil {
		return nil
	}
	return d.x
}

// Validate checks the schema itself, then every row against it.
func (d *Dataset) Validate() error {
	if err := d.schema.Validate(); err != nil {
		return err
	}
	for i := 0; i < d.NumInstances(); i++ {
		if err := d.schema.CheckInstance(d.x.RawRowView(i)); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
	}
	return nil
}

// CountMissing returns the number of missing values in the dataset.
func (d *Dataset) CountMissing() int {
	n := 0
	for i := 0; i < d.NumInstances(); i++ {
		for _, v := range d.x.RawRowView(i) {
			if IsMissing(v) {
				n++
			}
		}
	}
	return n
}
