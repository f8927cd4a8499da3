// Package llm streams chat completions from language-model providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Client opens a streamed completion for an ordered message list.
type Client interface {
	Stream(ctx context.Context, messages []Message) (Stream, error)
}

// Stream yields text fragments. Recv returns io.EOF once the reply is complete.
// Close may be called at any time to stop consuming early.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Collect drains a full completion into a single string.
func Collect(ctx context.Context, c Client, messages []Message) (string, error) {
	stream, err := c.Stream(ctx, messages)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), fmt.Errorf("recv: %w", err)
		}
		b.WriteString(chunk)
	}
}

// sliceStream replays fixed chunks. Used by the mock provider and fallbacks.
type sliceStream struct {
	ctx    context.Context
	chunks []string
	closed bool
}

func newSliceStream(ctx context.Context, chunks []string) *sliceStream {
	return &sliceStream{ctx: ctx, chunks: chunks}
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed || len(s.chunks) == 0 {
		return "", io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
