package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOf(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://Example.COM/contact", "example.com"},
		{"http://example.com:8080/a?b=c", "example.com"},
		{"  https://example.com/  ", "example.com"},
		{"https://例え.jp/お問い合わせ", "xn--r8jz45g.jp"},
		{"https://xn--r8jz45g.jp/", "xn--r8jz45g.jp"},
		{"http://127.0.0.1:9000/form", "127.0.0.1"},
		{"http://[::1]:9000/form", "::1"},
	}
	for _, tt := range tests {
		got, err := HostOf(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestHostOfRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"/contact",
		"example.com/contact",
		"mailto:info@example.com",
		"javascript:alert(1)",
		"https://",
		"http://%zz",
	} {
		_, err := HostOf(raw)
		assert.ErrorIs(t, err, ErrInvalidTarget, raw)
	}
}
