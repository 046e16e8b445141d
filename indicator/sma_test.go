package indicator

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/peterldowns/testy/assert"
)

var nan = math.NaN()

func TestSMA(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		window  int
		want    []float64
		wantErr bool
	}{
		{
			name:   "window of three",
			values: []float64{69, 60, 54, 55},
			window: 3,
			want:   []float64{nan, nan, 61, 56.333333333333336},
		},
		{
			name:   "window of one",
			values: []float64{1, 2, 3},
			window: 1,
			want:   []float64{1, 2, 3},
		},
		{
			name:   "window longer than series",
			values: []float64{1, 2},
			window: 3,
			want:   []float64{nan, nan},
		},
		{
			name:   "nan propagates through its windows",
			values: []float64{1, nan, 3, 4, 5},
			window: 2,
			want:   []float64{nan, nan, nan, 3.5, 4.5},
		},
		{
			name:   "empty series",
			values: []float64{},
			window: 3,
			want:   []float64{},
		},
		{
			name:    "zero window",
			values:  []float64{1, 2, 3},
			window:  0,
			wantErr: true,
		},
	}

	for _, test := range tests {
		got, err := SMA(test.values, test.window)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected an error, got none", test.name)
			}
			continue
		}

		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
			continue
		}

		if !cmp.Equal(got, test.want, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-9)) {
			t.Errorf("%s: mismatching averages, got %v", test.name,
				cmp.Diff(got, test.want, cmpopts.EquateNaNs()))
		}
	}
}

func TestSpread(t *testing.T) {
	got, err := Spread([]float64{nan, 5, 3}, []float64{1, 2, nan})
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, got[1], float64(3))
	assert.True(t, math.IsNaN(got[2]))

	// Ensure misaligned series error.
	_, err = Spread([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestShift(t *testing.T) {
	values := []float64{1, 2, 3, 4}

	// Ensure a one period shift lags every entry by one.
	got, err := Shift(values, 1)
	assert.NoError(t, err)
	if !cmp.Equal(got, []float64{nan, 1, 2, 3}, cmpopts.EquateNaNs()) {
		t.Errorf("unexpected shifted series: %v", got)
	}

	// Ensure shifting twice matches a single two period shift.
	twice, err := Shift(got, 1)
	assert.NoError(t, err)
	direct, err := Shift(values, 2)
	assert.NoError(t, err)
	if !cmp.Equal(twice, direct, cmpopts.EquateNaNs()) {
		t.Errorf("expected %v, got %v", direct, twice)
	}

	// Ensure a zero shift is the identity.
	got, err = Shift(values, 0)
	assert.NoError(t, err)
	if !cmp.Equal(got, values) {
		t.Errorf("expected %v, got %v", values, got)
	}

	// Ensure shifting past the end yields no values.
	got, err = Shift(values, 10)
	assert.NoError(t, err)
	for idx := range got {
		assert.True(t, math.IsNaN(got[idx]))
	}

	// Ensure negative periods error.
	_, err = Shift(values, -1)
	assert.Error(t, err)
}
