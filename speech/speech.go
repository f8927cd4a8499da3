// Package speech turns streamed reply text into spoken audio files.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"backend-go-assistant/internal/logger"
)

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// SplitSentences returns the complete sentences in buffer and the unfinished
// tail. A sentence ends at '.', '!' or '?' followed by whitespace.
func SplitSentences(buffer string) (sentences []string, remainder string) {
	last := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(buffer, -1) {
		// m[3] is the end of the punctuation group.
		sentences = append(sentences, strings.TrimSpace(buffer[last:m[3]]))
		last = m[1]
	}
	return sentences, buffer[last:]
}

// Synthesizer renders text to an audio file and returns the file name,
// relative to its output directory.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// PiperCLI shells out to the piper binary: text on stdin, WAV written to
// --output_file.
type PiperCLI struct {
	binary    string
	modelPath string
	outputDir string
	log       *slog.Logger
}

func NewPiperCLI(binary, modelPath, outputDir string, log *slog.Logger) (*PiperCLI, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("speech: model_path is required")
	}
	if binary == "" {
		binary = "piper"
	}
	if log == nil {
		log = logger.Discard()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create output dir: %w", err)
	}
	return &PiperCLI{binary: binary, modelPath: modelPath, outputDir: outputDir, log: log}, nil
}

func (p *PiperCLI) OutputDir() string { return p.outputDir }

func (p *PiperCLI) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("speech: empty text")
	}
	name := uuid.NewString() + ".wav"
	out := filepath.Join(p.outputDir, name)

	cmd := exec.CommandContext(ctx, p.binary, "--model", p.modelPath, "--output_file", out)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("speech: piper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	logger.FromContext(ctx, p.log).Debug("speech_synthesized", "file", name, "chars", len(text))
	return name, nil
}
