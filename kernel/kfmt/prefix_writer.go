package kfmt

import "io"

// PrefixWriter wraps an io.Writer and injects Prefix at the start of every
// line written through it. It is used to tag multi-line output blocks with
// the name of the module that produced them.
type PrefixWriter struct {
	// Sink receives the prefixed output. A nil Sink behaves like Printf
	// with no output sink attached.
	Sink io.Writer

	// Prefix is emitted before the first byte of each line.
	Prefix []byte

	midLine bool
}

// Write writes p to the sink, emitting the prefix whenever a new line
// starts. The returned byte count does not include injected prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, start int

	for i := 0; i < len(p); i++ {
		if p[i] != '\n' {
			continue
		}

		n, err := w.writeLine(p[start : i+1])
		written += n
		if err != nil {
			return written, err
		}
		w.midLine = false
		start = i + 1
	}

	if start < len(p) {
		n, err := w.writeLine(p[start:])
		written += n
		w.midLine = true
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

func (w *PrefixWriter) writeLine(line []byte) (int, error) {
	if !w.midLine {
		doWrite(w.Sink, w.Prefix)
	}

	if w.Sink == nil {
		doWrite(nil, line)
		return len(line), nil
	}
	return w.Sink.Write(line)
}
