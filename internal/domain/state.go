package domain

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

type SpeciesID string

type Quantity string

const (
	QuantityDensity     Quantity = "density"
	QuantityTemperature Quantity = "temperature"
)

func ValidQuantity(q string) bool {
	switch Quantity(q) {
	case QuantityDensity, QuantityTemperature:
		return true
	}
	return false
}

// Field identifies one profile being solved for: a physical quantity of one species.
type Field struct {
	Species  SpeciesID `json:"species"`
	Quantity Quantity  `json:"quantity"`
}

func (f Field) String() string {
	return string(f.Species) + "." + string(f.Quantity)
}

// Basis defines the degrees of freedom of a plasma state: every field is
// discretized on the same normalized radial grid. The flat solver vector is
// laid out field-major, so column = fieldIndex*len(rho) + gridIndex.
type Basis struct {
	fields []Field
	rho    []float64
	index  map[Field]int
}

func NewBasis(rho []float64, fields ...Field) (*Basis, error) {
	if len(rho) == 0 {
		return nil, fmt.Errorf("basis: empty radial grid")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("basis: no fields")
	}
	for i := 1; i < len(rho); i++ {
		if rho[i] <= rho[i-1] {
			return nil, fmt.Errorf("basis: radial grid not strictly increasing at index %d", i)
		}
	}
	index := make(map[Field]int, len(fields))
	for i, f := range fields {
		if _, dup := index[f]; dup {
			return nil, fmt.Errorf("basis: duplicate field %s", f)
		}
		index[f] = i
	}
	b := &Basis{
		fields: append([]Field(nil), fields...),
		rho:    append([]float64(nil), rho...),
		index:  index,
	}
	return b, nil
}

// Dim is the total number of degrees of freedom.
func (b *Basis) Dim() int {
	return len(b.fields) * len(b.rho)
}

func (b *Basis) Fields() []Field {
	return append([]Field(nil), b.fields...)
}

func (b *Basis) Rho() []float64 {
	return append([]float64(nil), b.rho...)
}

func (b *Basis) GridSize() int {
	return len(b.rho)
}

// Column maps (field, grid index) to a flat vector column.
func (b *Basis) Column(f Field, gridIdx int) (int, error) {
	fi, ok := b.index[f]
	if !ok {
		return 0, fmt.Errorf("basis: unknown field %s", f)
	}
	if gridIdx < 0 || gridIdx >= len(b.rho) {
		return 0, fmt.Errorf("basis: grid index %d out of range [0,%d)", gridIdx, len(b.rho))
	}
	return fi*len(b.rho) + gridIdx, nil
}

// FieldAt inverts Column, returning the field and grid index a column belongs to.
func (b *Basis) FieldAt(col int) (Field, int, error) {
	if col < 0 || col >= b.Dim() {
		return Field{}, 0, fmt.Errorf("basis: column %d out of range [0,%d)", col, b.Dim())
	}
	return b.fields[col/len(b.rho)], col % len(b.rho), nil
}

func (b *Basis) HasField(f Field) bool {
	_, ok := b.index[f]
	return ok
}

// Key is a deterministic identifier of the basis layout. Two states are
// comparable (same fields, same grid) exactly when their keys match.
func (b *Basis) Key() string {
	h := fnv.New64a()
	for _, f := range b.fields {
		h.Write([]byte(f.String()))
		h.Write([]byte{'|'})
	}
	for _, r := range b.rho {
		fmt.Fprintf(h, "%.17g,", r)
	}
	names := make([]string, len(b.fields))
	for i, f := range b.fields {
		names[i] = f.String()
	}
	return fmt.Sprintf("%s/g%d/%016x", strings.Join(names, "+"), len(b.rho), h.Sum64())
}

// PlasmaState is one immutable snapshot of the composition being solved for.
// The solver never mutates a state in place: each accepted iteration produces
// a fresh instance via WithVector, and the superseded snapshot stays alive
// only as long as provenance references it.
type PlasmaState struct {
	basis  *Basis
	time   float64
	values []float64
}

func NewPlasmaState(basis *Basis, time float64, values []float64) (*PlasmaState, error) {
	if basis == nil {
		return nil, fmt.Errorf("state: nil basis")
	}
	if len(values) != basis.Dim() {
		return nil, fmt.Errorf("state: value vector has %d entries, basis has %d degrees of freedom", len(values), basis.Dim())
	}
	return &PlasmaState{
		basis:  basis,
		time:   time,
		values: append([]float64(nil), values...),
	}, nil
}

func (s *PlasmaState) Basis() *Basis { return s.basis }

func (s *PlasmaState) Time() float64 { return s.time }

func (s *PlasmaState) Dim() int { return len(s.values) }

// Vector returns a copy of the flat solver vector.
func (s *PlasmaState) Vector() []float64 {
	return append([]float64(nil), s.values...)
}

func (s *PlasmaState) Value(f Field, gridIdx int) (float64, error) {
	col, err := s.basis.Column(f, gridIdx)
	if err != nil {
		return 0, err
	}
	return s.values[col], nil
}

// Profile returns a copy of one field's values across the radial grid.
func (s *PlasmaState) Profile(f Field) ([]float64, error) {
	start, err := s.basis.Column(f, 0)
	if err != nil {
		return nil, err
	}
	n := s.basis.GridSize()
	return append([]float64(nil), s.values[start:start+n]...), nil
}

// WithVector returns a new state on the same basis and time with replaced values.
func (s *PlasmaState) WithVector(values []float64) (*PlasmaState, error) {
	return NewPlasmaState(s.basis, s.time, values)
}

// Physical reports whether every value is finite and non-negative. Densities
// and temperatures below zero have no physical meaning, so the solver rejects
// update steps that would land here.
func (s *PlasmaState) Physical() bool {
	for _, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// MaxRelChange returns the largest relative per-component change from prev,
// used by the solver's state-change convergence test.
func (s *PlasmaState) MaxRelChange(prev *PlasmaState) float64 {
	max := 0.0
	for i, v := range s.values {
		denom := math.Abs(prev.values[i])
		if denom == 0 {
			denom = 1
		}
		rel := math.Abs(v-prev.values[i]) / denom
		if rel > max {
			max = rel
		}
	}
	return max
}
