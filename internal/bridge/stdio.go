package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
)

// eventBuffer bounds the events queued for one client.
const eventBuffer = 256

// queueSink buffers events for a single writer goroutine.
type queueSink struct {
	events chan protocol.Event
}

func newQueueSink() *queueSink {
	return &queueSink{events: make(chan protocol.Event, eventBuffer)}
}

// Send implements Sink. A full buffer drops the event.
func (q *queueSink) Send(ev protocol.Event) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return fmt.Errorf("dropping event %s due to full buffer", ev.GetType())
	}
}

// StdioRunner speaks NDJSON: one command per input line, one event per
// output line.
type StdioRunner struct {
	ctrl    *Controller
	scanner *bufio.Scanner
	writer  *bufio.Writer
	sink    *queueSink
	log     engine.Logger
}

// NewStdioRunner creates a runner reading in and writing out.
func NewStdioRunner(ctrl *Controller, in io.Reader, out io.Writer, log engine.Logger) *StdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if log == nil {
		log = engine.NopLogger{}
	}
	return &StdioRunner{
		ctrl:    ctrl,
		scanner: scanner,
		writer:  bufio.NewWriter(out),
		sink:    newQueueSink(),
		log:     log,
	}
}

// Run handles input lines until in is exhausted or ctx is done. The
// current state and config are written first.
func (r *StdioRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := r.ctrl.Subscribe(r.sink)
	errCh := make(chan error, 1)
	go r.flushEvents(ctx, errCh)

	r.handleLine(ctx, `{"type":"requestState"}`)

	for {
		select {
		case <-ctx.Done():
			unsubscribe()
			return <-errCh
		default:
		}

		if !r.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		r.handleLine(ctx, line)
	}

	unsubscribe()
	if err := r.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		r.log.Error(fmt.Sprintf("stdin error: %v", err))
	}
	cancel()
	return <-errCh
}

func (r *StdioRunner) handleLine(ctx context.Context, line string) {
	cmd, err := protocol.DecodeCommand([]byte(line))
	if err != nil {
		r.log.Warn(fmt.Sprintf("stdio: invalid command: %v", err))
		_ = r.sink.Send(protocol.NewErrorEvent(err))
		return
	}
	if err := r.ctrl.Handle(ctx, cmd, r.sink); err != nil {
		r.log.Warn(fmt.Sprintf("stdio: %s failed: %v", cmd.GetType(), err))
	}
}

// flushEvents writes queued events until ctx is done, then drains what is
// already queued.
func (r *StdioRunner) flushEvents(ctx context.Context, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.sink.events:
					if err := r.writeEvent(ev); err != nil {
						errCh <- err
						return
					}
				default:
					errCh <- r.writer.Flush()
					return
				}
			}
		case ev := <-r.sink.events:
			if err := r.writeEvent(ev); err != nil {
				errCh <- err
				return
			}
		}
	}
}

func (r *StdioRunner) writeEvent(ev protocol.Event) error {
	payload, err := protocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return r.writer.Flush()
}
