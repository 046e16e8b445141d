package indicator

import (
	"fmt"
	"math"
)

// SMA computes the trailing simple moving average of the provided series over the
// specified window. The result is aligned with the input: entries without a full
// window behind them are NaN, as is any window containing a NaN input.
func SMA(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}

	out := make([]float64, len(values))
	for idx := range values {
		if idx < window-1 {
			out[idx] = math.NaN()
			continue
		}

		var sum float64
		for _, v := range values[idx-window+1 : idx+1] {
			sum += v
		}

		out[idx] = sum / float64(window)
	}

	return out, nil
}

// Spread returns the element-wise difference a - b. Both series must be aligned.
func Spread(a []float64, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("mismatched series lengths: %d and %d", len(a), len(b))
	}

	out := make([]float64, len(a))
	for idx := range a {
		out[idx] = a[idx] - b[idx]
	}

	return out, nil
}

// Shift moves the provided series forward by the given number of periods, filling the
// vacated leading entries with NaN.
func Shift(values []float64, periods int) ([]float64, error) {
	if periods < 0 {
		return nil, fmt.Errorf("periods cannot be negative, got %d", periods)
	}

	out := make([]float64, len(values))
	for idx := range out {
		if idx < periods {
			out[idx] = math.NaN()
			continue
		}

		out[idx] = values[idx-periods]
	}

	return out, nil
}
