package series

import (
	"errors"
	"testing"

	"github.com/dnldd/trends/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func TestParseSeries(t *testing.T) {
	tests := []struct {
		name     string
		blob     string
		want     []Record
		wantLine int
	}{
		{
			name: "crlf terminated rows",
			blob: "Month,interest\r\n2004-01,69\r\n2004-02,60\r\n2004-03,54\r\n2004-04,55\r\n",
			want: []Record{
				{Month: "2004-01", Interest: 69},
				{Month: "2004-02", Interest: 60},
				{Month: "2004-03", Interest: 54},
				{Month: "2004-04", Interest: 55},
			},
		},
		{
			name: "bare lf terminated rows",
			blob: "Month,interest\n2004-01,69\n2004-02,60.5",
			want: []Record{
				{Month: "2004-01", Interest: 69},
				{Month: "2004-02", Interest: 60.5},
			},
		},
		{
			name: "empty trailing lines are skipped",
			blob: "Month,interest\r\n2004-01,69\r\n\r\n\r\n",
			want: []Record{
				{Month: "2004-01", Interest: 69},
			},
		},
		{
			name: "input order is preserved",
			blob: "Month,interest\n2004-03,1\n2004-01,2\n2004-03,3",
			want: []Record{
				{Month: "2004-03", Interest: 1},
				{Month: "2004-01", Interest: 2},
				{Month: "2004-03", Interest: 3},
			},
		},
		{
			name: "header only",
			blob: "Month,interest\r\n",
			want: []Record{},
		},
		{
			name: "empty blob",
			blob: "",
			want: []Record{},
		},
		{
			name:     "too many fields",
			blob:     "Month,interest\n2004-01,69\n2004-02,60,1",
			wantLine: 3,
		},
		{
			name:     "too few fields",
			blob:     "Month,interest\n2004-01",
			wantLine: 2,
		},
		{
			name:     "interest is not a number",
			blob:     "Month,interest\r\n2004-01,<1\r\n",
			wantLine: 2,
		},
		{
			name:     "interest is not finite",
			blob:     "Month,interest\n2004-01,NaN",
			wantLine: 2,
		},
		{
			name:     "invalid month key",
			blob:     "Month,interest\n2004-1,5",
			wantLine: 2,
		},
	}

	for _, test := range tests {
		records, err := ParseSeries(test.blob)
		if test.wantLine > 0 {
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("%s: expected a parse error, got %v", test.name, err)
				continue
			}
			if parseErr.Line != test.wantLine {
				t.Errorf("%s: expected error on line %d, got %d", test.name, test.wantLine, parseErr.Line)
			}
			continue
		}

		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
			continue
		}

		if !cmp.Equal(records, test.want) {
			t.Errorf("%s: mismatching records, got %v", test.name, cmp.Diff(records, test.want))
		}
	}
}

func TestParseErrorMessage(t *testing.T) {
	_, err := ParseSeries("Month,interest\n2004-01;69")
	assert.Error(t, err)
	assert.Equal(t, err.Error(), `parsing series line 2 ("2004-01;69"): expected exactly two fields`)
}

func TestOutOfOrder(t *testing.T) {
	records := []Record{
		{Month: "2004-01"},
		{Month: "2004-02"},
		{Month: "2004-02"},
		{Month: "2004-04"},
		{Month: "2004-03"},
	}

	// Ensure duplicate and regressing months are reported.
	keys := OutOfOrder(records)
	assert.Equal(t, len(keys), 2)
	assert.Equal(t, keys[0], shared.MonthKey("2004-02"))
	assert.Equal(t, keys[1], shared.MonthKey("2004-03"))

	// Ensure sorted records report nothing.
	assert.Equal(t, len(OutOfOrder(records[:2])), 0)
	assert.Equal(t, len(OutOfOrder(nil)), 0)
}
