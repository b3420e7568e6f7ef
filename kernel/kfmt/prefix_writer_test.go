package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		writes []string
		exp    string
	}{
		{[]string{""}, ""},
		{[]string{"single line"}, "[pmm] single line"},
		{[]string{"line\n"}, "[pmm] line\n"},
		{[]string{"first\nsecond\n"}, "[pmm] first\n[pmm] second\n"},
		{[]string{"par", "tial\n", "next"}, "[pmm] partial\n[pmm] next"},
		{[]string{"\n\n"}, "[pmm] \n[pmm] \n"},
	}

	for specIndex, spec := range specs {
		var (
			buf bytes.Buffer
			w   = PrefixWriter{Sink: &buf, Prefix: []byte("[pmm] ")}
		)

		for _, s := range spec.writes {
			n, err := w.Write([]byte(s))
			require.NoError(t, err, "[spec %d]", specIndex)
			require.Equal(t, len(s), n, "[spec %d]", specIndex)
		}

		require.Equal(t, spec.exp, buf.String(), "[spec %d]", specIndex)
	}
}

type failingWriter struct {
	failAfter int
	writes    int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.failAfter {
		return 0, errors.New("sink failed")
	}
	return len(p), nil
}

func TestPrefixWriterErrors(t *testing.T) {
	// prefix write fails
	w := PrefixWriter{Sink: &failingWriter{failAfter: 0}, Prefix: []byte("> ")}
	n, err := w.Write([]byte("data"))
	require.Error(t, err)
	require.Zero(t, n)

	// content write fails
	w = PrefixWriter{Sink: &failingWriter{failAfter: 1}, Prefix: []byte("> ")}
	n, err = w.Write([]byte("data"))
	require.Error(t, err)
	require.Zero(t, n)
}
