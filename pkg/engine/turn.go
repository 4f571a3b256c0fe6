package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/model"
)

// executeTurn sends one streaming request to the model and consumes the
// stream fragment by fragment, accumulating text and tool calls. If the
// token is already set before the first read, it fails immediately with a
// cancellation error without issuing any read.
func (e *Engine) executeTurn(
	ctx context.Context,
	modelID, instructions string,
	messages []model.Message,
	specs []domain.ToolSpec,
	turn int,
	tok *CancelToken,
) (*domain.TurnResult, error) {
	if tok.Requested() {
		tok.MarkHonored()
		return nil, ErrCancelled
	}

	stream, err := e.provider.Stream(ctx, modelID, instructions, messages, specs)
	if err != nil {
		return nil, fmt.Errorf("turn %d: starting model stream: %w", turn, err)
	}
	defer stream.Close()

	var text strings.Builder
	var calls []domain.ToolCall

	for {
		frag, err := e.nextFragment(stream, tok)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if IsCancellation(err) {
				return nil, err
			}
			return nil, fmt.Errorf("turn %d: reading model stream: %w", turn, err)
		}

		switch frag.Kind {
		case model.FragmentText:
			text.WriteString(frag.Delta)
		case model.FragmentToolCall:
			if frag.ToolCall != nil {
				calls = append(calls, *frag.ToolCall)
			}
		default:
			// Unknown fragment kinds are ignored; iteration continues.
		}
	}

	return &domain.TurnResult{
		Text:      text.String(),
		ToolCalls: calls,
		Turn:      turn,
	}, nil
}

// nextFragment races the stream read against the cancellation token for up
// to streamCancelWindow. Past the window the read is awaited unconditionally:
// a very long single fragment cannot be interrupted after the ceiling, but
// short-interval cancellation is guaranteed for the common case.
func (e *Engine) nextFragment(stream model.Stream, tok *CancelToken) (model.Fragment, error) {
	type readResult struct {
		frag model.Fragment
		err  error
	}
	// Buffered so the read goroutine never blocks after a cancelled race;
	// closing the stream unblocks it.
	ch := make(chan readResult, 1)
	go func() {
		frag, err := stream.Next()
		ch <- readResult{frag, err}
	}()

	ceiling := time.NewTimer(e.streamCancelWindow)
	defer ceiling.Stop()

	select {
	case r := <-ch:
		return r.frag, r.err
	case <-tok.Done():
		tok.MarkHonored()
		return model.Fragment{}, ErrCancelled
	case <-ceiling.C:
		r := <-ch
		return r.frag, r.err
	}
}
