package afferent

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/logging"
)

// ConsoleTopic is the topic console lines are emitted under.
const ConsoleTopic = "console.line"

// ConsoleOptions configures a Console bridge.
type ConsoleOptions struct {
	// StreamID tags emitted events with a destination stream.
	StreamID string

	// Logger receives bridge diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Console reads lines from a reader and emits one console.line event per
// line. It is the simplest afferent bridge and doubles as the reference for
// writing new ones.
type Console struct {
	reader io.Reader
	sink   Sink
	opts   ConsoleOptions
}

// NewConsole creates a console bridge over a reader, usually os.Stdin.
func NewConsole(reader io.Reader, sink Sink, optFns ...func(o *ConsoleOptions)) *Console {
	opts := ConsoleOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Console{reader: reader, sink: sink, opts: opts}
}

// Run reads until EOF, the reader fails, or ctx is done. Blank lines are
// skipped.
func (c *Console) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.reader)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev := core.NewEvent(ConsoleTopic, "console").
			WithStream(c.opts.StreamID).
			WithPayload(map[string]any{"text": line})
		c.sink.Emit(ev)
	}
	if err := scanner.Err(); err != nil {
		c.opts.Logger.Error("console read failed", "error", err)
		c.sink.EmitError(err)
		return err
	}
	return nil
}
