package dismissal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterKeystroke(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		proposed string
		want     string
	}{
		{name: "typed character is uppercased", current: "AB", proposed: "ABc", want: "ABC"},
		{name: "paste is rejected", current: "AB", proposed: "ABCDEFGH", want: "AB"},
		{name: "paste into empty input", current: "", proposed: "K7", want: ""},
		{name: "deletion", current: "ABC", proposed: "AB", want: "AB"},
		{name: "clearing", current: "ABCDEFGH", proposed: "", want: ""},
		{name: "symbols are dropped", current: "AB", proposed: "AB-", want: "AB"},
		{name: "capped at code length", current: "ABCDEFGH", proposed: "ABCDEFGHI", want: "ABCDEFGH"},
		{name: "replacing a selection", current: "ABCD", proposed: "ABX", want: "ABX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterKeystroke(tt.current, tt.proposed))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "K7Q2M9XA", normalize("  k7q2m9xa\n"))
}
