package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil slice", nil, nil},
		{"single broker", []string{"kafka:9092"}, []string{"kafka:9092"}},
		{"trailing separator", []string{"a:9092", "b:9092", ""}, []string{"a:9092", "b:9092"}},
		{"spaces after commas", []string{"a:9092", " b:9092 "}, []string{"a:9092", "b:9092"}},
		{"repeated broker keeps first position", []string{"b:9092", "a:9092", "b:9092"}, []string{"b:9092", "a:9092"}},
		{"only blanks", []string{" ", ""}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
