package model

import (
	"reflect"
	"testing"
)

func TestNameVariants(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"https://example.com", []string{"https://example.com", "https://example.com", "https://example.com/"}},
		{"https://example.com/", []string{"https://example.com/", "https://example.com", "https://example.com/"}},
	}

	for _, tt := range tests {
		got := NameVariants(tt.name)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NameVariants(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
