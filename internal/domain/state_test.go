package domain

import (
	"math"
	"testing"
)

func testBasis(t *testing.T) *Basis {
	t.Helper()
	b, err := NewBasis(
		[]float64{0.0, 0.5, 1.0},
		Field{Species: "electron", Quantity: QuantityDensity},
		Field{Species: "electron", Quantity: QuantityTemperature},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}

func TestNewBasis_Validation(t *testing.T) {
	ne := Field{Species: "electron", Quantity: QuantityDensity}

	tests := []struct {
		name    string
		rho     []float64
		fields  []Field
		wantErr bool
	}{
		{"valid", []float64{0, 0.5, 1}, []Field{ne}, false},
		{"empty grid", nil, []Field{ne}, true},
		{"no fields", []float64{0, 1}, nil, true},
		{"non-increasing grid", []float64{0, 0.5, 0.5}, []Field{ne}, true},
		{"duplicate field", []float64{0, 1}, []Field{ne, ne}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBasis(tt.rho, tt.fields...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewBasis() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBasis_ColumnRoundTrip(t *testing.T) {
	b := testBasis(t)

	for _, f := range b.Fields() {
		for i := 0; i < b.GridSize(); i++ {
			col, err := b.Column(f, i)
			if err != nil {
				t.Fatalf("Column(%s, %d): %v", f, i, err)
			}
			gotF, gotI, err := b.FieldAt(col)
			if err != nil {
				t.Fatalf("FieldAt(%d): %v", col, err)
			}
			if gotF != f || gotI != i {
				t.Errorf("FieldAt(Column(%s, %d)) = (%s, %d)", f, i, gotF, gotI)
			}
		}
	}

	if _, err := b.Column(Field{Species: "carbon", Quantity: QuantityDensity}, 0); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := b.Column(b.Fields()[0], 99); err == nil {
		t.Error("expected error for out-of-range grid index")
	}
}

func TestPlasmaState_Immutability(t *testing.T) {
	b := testBasis(t)
	values := []float64{1, 2, 3, 4, 5, 6}

	s, err := NewPlasmaState(b, 0.1, values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the input slice must not affect the state.
	values[0] = 99
	v, _ := s.Value(Field{Species: "electron", Quantity: QuantityDensity}, 0)
	if v != 1 {
		t.Errorf("state aliased its input slice: got %f, want 1", v)
	}

	// Mutating a returned vector must not affect the state.
	vec := s.Vector()
	vec[1] = 99
	v, _ = s.Value(Field{Species: "electron", Quantity: QuantityDensity}, 1)
	if v != 2 {
		t.Errorf("Vector() aliased internal storage: got %f, want 2", v)
	}

	// WithVector produces a distinct snapshot.
	next, err := s.WithVector([]float64{10, 20, 30, 40, 50, 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ = s.Value(Field{Species: "electron", Quantity: QuantityTemperature}, 0)
	if v != 4 {
		t.Errorf("WithVector mutated the original: got %f, want 4", v)
	}
	nv, _ := next.Value(Field{Species: "electron", Quantity: QuantityTemperature}, 0)
	if nv != 40 {
		t.Errorf("new state value = %f, want 40", nv)
	}
}

func TestPlasmaState_DimensionMismatch(t *testing.T) {
	b := testBasis(t)
	if _, err := NewPlasmaState(b, 0, []float64{1, 2}); err == nil {
		t.Error("expected error for wrong vector length")
	}
}

func TestPlasmaState_Profile(t *testing.T) {
	b := testBasis(t)
	s, _ := NewPlasmaState(b, 0, []float64{1, 2, 3, 4, 5, 6})

	p, err := s.Profile(Field{Species: "electron", Quantity: QuantityTemperature})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{4, 5, 6}
	for i := range want {
		if p[i] != want[i] {
			t.Errorf("profile[%d] = %f, want %f", i, p[i], want[i])
		}
	}
}

func TestPlasmaState_Physical(t *testing.T) {
	b := testBasis(t)

	tests := []struct {
		name   string
		values []float64
		want   bool
	}{
		{"all positive", []float64{1, 2, 3, 4, 5, 6}, true},
		{"zero allowed", []float64{0, 2, 3, 4, 5, 6}, true},
		{"negative density", []float64{-1, 2, 3, 4, 5, 6}, false},
		{"nan", []float64{math.NaN(), 2, 3, 4, 5, 6}, false},
		{"inf", []float64{1, 2, 3, math.Inf(1), 5, 6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewPlasmaState(b, 0, tt.values)
			if got := s.Physical(); got != tt.want {
				t.Errorf("Physical() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlasmaState_MaxRelChange(t *testing.T) {
	b := testBasis(t)
	prev, _ := NewPlasmaState(b, 0, []float64{1, 1, 1, 1, 1, 1})
	next, _ := prev.WithVector([]float64{1, 1.1, 1, 1, 1, 0.8})

	got := next.MaxRelChange(prev)
	if math.Abs(got-0.2) > 1e-12 {
		t.Errorf("MaxRelChange = %f, want 0.2", got)
	}
}
