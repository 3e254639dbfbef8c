package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotal(t *testing.T) {
	tests := []struct {
		name  string
		lines []PricedLine
		want  int
	}{
		{
			name:  "empty",
			lines: nil,
			want:  0,
		},
		{
			name:  "single line",
			lines: []PricedLine{{Quantity: 3, UnitPrice: 500}},
			want:  1500,
		},
		{
			name: "multiple lines",
			lines: []PricedLine{
				{Quantity: 2, UnitPrice: 1000},
				{Quantity: 1, UnitPrice: 250},
			},
			want: 2250,
		},
		{
			name:  "free item",
			lines: []PricedLine{{Quantity: 5, UnitPrice: 0}},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Total(tt.lines))
		})
	}
}
