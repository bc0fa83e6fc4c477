package kfmt

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		input []string
		exp   string
	}{
		{[]string{""}, ""},
		{[]string{"single line"}, "[boot_pmm] single line"},
		{[]string{"line 1\nline 2\n"}, "[boot_pmm] line 1\n[boot_pmm] line 2\n"},
		{[]string{"split ", "line\n", "next"}, "[boot_pmm] split line\n[boot_pmm] next"},
		{[]string{"a\n\nb"}, "[boot_pmm] a\n[boot_pmm] \n[boot_pmm] b"},
	}

	for specIndex, spec := range specs {
		var (
			buf bytes.Buffer
			w   = PrefixWriter{Sink: &buf, Prefix: []byte("[boot_pmm] ")}
		)

		for _, in := range spec.input {
			n, err := w.Write([]byte(in))
			if err != nil {
				t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
			}
			if n != len(in) {
				t.Errorf("[spec %d] expected Write to report %d bytes; got %d", specIndex, len(in), n)
			}
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.exp, got)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("sink failed") }

func TestPrefixWriterError(t *testing.T) {
	w := PrefixWriter{Sink: failingWriter{}, Prefix: []byte("> ")}

	if _, err := w.Write([]byte("line\n")); err == nil {
		t.Fatal("expected sink error to be propagated")
	}

	if _, err := w.Write([]byte("partial")); err == nil {
		t.Fatal("expected sink error to be propagated")
	}
}

func TestPrefixWriterNilSink(t *testing.T) {
	defer func(origSink io.Writer) {
		outputSink = origSink
	}(outputSink)

	outputSink = nil
	earlyBuffer.rIndex, earlyBuffer.wIndex = 0, 0

	w := PrefixWriter{Prefix: []byte("[kmain] ")}
	if n, err := w.Write([]byte("a\nb\n")); err != nil || n != 4 {
		t.Fatalf("expected Write to report 4 bytes and no error; got %d, %v", n, err)
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "[kmain] a\n[kmain] b\n", buf.String(); got != exp {
		t.Fatalf("expected output to be buffered until a sink is attached; got %q", got)
	}
}
