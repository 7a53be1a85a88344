package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, []string{}},
		{"trims and drops empties", []string{"  a ", "", "   ", "b"}, []string{"a", "b"}},
		{"keeps first occurrence", []string{"b", "a", " b"}, []string{"b", "a"}},
		{"case sensitive", []string{"0xAB", "0xab"}, []string{"0xAB", "0xab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("", ","))
	assert.Nil(t, SplitList("   ", ","))
	assert.Equal(t, []string{"localhost:9092", "kafka:9092"}, SplitList("localhost:9092, kafka:9092,,localhost:9092", ","))
}
