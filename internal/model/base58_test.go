package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidAccountKey(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", false},
		{"valid base58", "11111111111111111111111111111111", true},
		{"valid base58 alphabet", "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz123456789", true},
		{"contains invalid char zero digit", "0xDEADBEEF", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, ValidAccountKey(c.in))
		})
	}
}
