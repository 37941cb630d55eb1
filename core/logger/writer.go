package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errWriterClosed = errors.New("logger: writer closed")

// writeOp is either a log line or a flush request answered on ack.
type writeOp struct {
	line []byte
	ack  chan error
}

// asyncWriter moves log output off the calling goroutine. Lines and flush
// requests share one queue, so a flush covers every line written before it.
type asyncWriter struct {
	ops   chan writeOp
	done  chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	sinks []*bufio.Writer

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		ops:  make(chan writeOp, 256),
		done: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for op := range w.ops {
		if op.ack != nil {
			op.ack <- w.flush()
			continue
		}
		w.setErr(w.write(op.line))
	}
	w.setErr(w.flush())
}

// Write queues a copy of p. It blocks while the queue is full rather than
// dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if w.closed.Load() {
		return errWriterClosed
	}
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.ops <- writeOp{line: append([]byte(nil), p...)}
	return nil
}

// Flush waits until everything queued so far reached the sinks.
func (w *asyncWriter) Flush() error {
	if w.closed.Load() {
		return errWriterClosed
	}
	if err := w.firstErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.ops <- writeOp{ack: ack}
	return <-ack
}

// Close drains the queue and returns the first write error.
func (w *asyncWriter) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.ops)
	})
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) write(p []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			return err
		}
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
