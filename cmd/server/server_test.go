package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard allows any origin", []string{"*"}, "https://evil.example.com", true},
		{"listed origin allowed", []string{"https://timer.example.com"}, "https://timer.example.com", true},
		{"unlisted origin rejected", []string{"https://timer.example.com"}, "https://evil.example.com", false},
		{"no origin header passes", []string{"https://timer.example.com"}, "", true},
		{"wildcard among others still allows", []string{"https://timer.example.com", "*"}, "https://other.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}
}
