package speech

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in        string
		sentences []string
		remainder string
	}{
		{"Hello there", nil, "Hello there"},
		{"Hello. World", []string{"Hello."}, "World"},
		{"One! Two? Three. ", []string{"One!", "Two?", "Three."}, ""},
		{"Pi is 3.14 roughly. Yes", []string{"Pi is 3.14 roughly."}, "Yes"},
		{"Ends with stop.", nil, "Ends with stop."},
		{"", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			s, r := SplitSentences(tc.in)
			assert.Equal(t, tc.sentences, s)
			assert.Equal(t, tc.remainder, r)
		})
	}
}

func TestNewPiperCLI_RequiresModel(t *testing.T) {
	_, err := NewPiperCLI("piper", "", t.TempDir(), nil)
	require.Error(t, err)
}

func TestPiperCLI_WritesWAVViaBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script stand-in for piper")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-piper")
	// Copies stdin to the --output_file argument ($4).
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat > \"$4\"\n"), 0o755))

	out := filepath.Join(dir, "audio")
	p, err := NewPiperCLI(script, "voice.onnx", out, nil)
	require.NoError(t, err)

	name, err := p.Synthesize(context.Background(), "  Hello there.  ")
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(name))

	b, err := os.ReadFile(filepath.Join(out, name))
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", string(b))

	_, err = p.Synthesize(context.Background(), "   ")
	require.Error(t, err)
}

func TestPiperCLI_FailureRemovesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script stand-in for piper")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "broken-piper")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho partial > \"$4\"\necho bad voice >&2\nexit 3\n"), 0o755))

	out := filepath.Join(dir, "audio")
	p, err := NewPiperCLI(script, "voice.onnx", out, nil)
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "Hi.")
	require.ErrorContains(t, err, "bad voice")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
