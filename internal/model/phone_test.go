package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()
	ok := map[string]string{
		"6912345678":       "+306912345678",
		"69 1234 5678":     "+306912345678",
		"210-123-4567":     "+302101234567",
		"0030 6912345678":  "+306912345678",
		"+44 20 7946 0958": "+442079460958",
	}
	for in, want := range ok {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "12345", "+0123456789", "69123abc78"} {
		_, err := NormalizePhone(in)
		require.ErrorIs(t, err, ErrBadPhone, in)
	}
}
