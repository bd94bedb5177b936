package proto

import (
	"bufio"
	"io"
)

// Writer encodes frames onto a stream. Each WriteFrame call flushes, so a
// frame is either fully handed to the transport or reported as failed.
// It is not safe for concurrent use.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame validates, encodes and flushes f.
func (w *Writer) WriteFrame(f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	switch f.Kind {
	case KindRelay:
		w.lines(TagRelay, f.From, f.To, f.Body)
	case KindHistoryRequest:
		w.lines(TagHistory+" "+f.Correlation, f.From, f.To)
	case KindHistoryResponse:
		w.lines(TagHistory+" "+f.Correlation, f.From, f.To)
		w.lines(f.Lines...)
		w.lines(TagEnd + " " + f.Correlation)
	}
	return w.w.Flush()
}

// lines buffers each line; bufio.Writer keeps the first error and reports it on Flush.
func (w *Writer) lines(lines ...string) {
	for _, line := range lines {
		_, _ = w.w.WriteString(line)
		_ = w.w.WriteByte('\n')
	}
}
