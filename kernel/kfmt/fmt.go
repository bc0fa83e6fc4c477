// Package kfmt provides console output for code that runs before the Go
// allocator is available. Nothing in this package allocates memory.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize bounds the number of digits (including padding) that fmtInt
// can emit for a single argument.
const numBufSize = 32

var (
	errMissingArg   = []byte("%!(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf [numBufSize]byte

	// oneByte is shared by all the helpers that need to emit a single
	// character; slicing a string would allocate.
	oneByte = []byte{0}

	// earlyBuffer collects output while no sink is attached.
	earlyBuffer ringBuffer

	// outputSink receives Printf output. When nil, output is kept in
	// earlyBuffer until SetOutputSink is called.
	outputSink io.Writer
)

// SetOutputSink redirects Printf output to w and replays anything that was
// buffered before a sink was available.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyBuffer)
	}
}

// GetOutputSink returns the writer currently receiving Printf output.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes a formatted message to the active output sink. It supports
// a small subset of the fmt verbs:
//
//	%s  string or []byte
//	%d  base 10 integer (space padded)
//	%x  base 16 integer (zero padded)
//	%o  base 8 integer (zero padded)
//	%t  bool
//	%%  literal percent sign
//
// An optional decimal width may precede the verb. Arguments are matched by
// type switch only; fmt.Stringer is never consulted.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
		inVerb   bool
	)

	for i := 0; i < len(format); i++ {
		ch := format[i]
		if !inVerb {
			if ch == '%' {
				inVerb, width = true, 0
				continue
			}
			writeByte(w, ch)
			continue
		}

		switch {
		case ch >= '0' && ch <= '9':
			width = width*10 + int(ch-'0')
			continue
		case ch == '%':
			writeByte(w, '%')
		case ch == 's' || ch == 'd' || ch == 'x' || ch == 'o' || ch == 't':
			if argIndex >= len(args) {
				doWrite(w, errMissingArg)
				break
			}
			fmtArg(w, ch, args[argIndex], width)
			argIndex++
		default:
			doWrite(w, errNoVerb)
		}
		inVerb = false
	}

	if inVerb {
		doWrite(w, errNoVerb)
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtArg(w io.Writer, verb byte, arg interface{}, width int) {
	switch verb {
	case 's':
		fmtString(w, arg, width)
	case 'd':
		fmtInt(w, arg, 10, width)
	case 'x':
		fmtInt(w, arg, 16, width)
	case 'o':
		fmtInt(w, arg, 8, width)
	case 't':
		fmtBool(w, arg)
	}
}

func fmtBool(w io.Writer, arg interface{}) {
	v, ok := arg.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case v:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtString(w io.Writer, arg interface{}, width int) {
	switch v := arg.(type) {
	case string:
		pad(w, ' ', width-len(v))
		for i := 0; i < len(v); i++ {
			writeByte(w, v[i])
		}
	case []byte:
		pad(w, ' ', width-len(v))
		doWrite(w, v)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtInt renders any built-in integer type in the requested base. Base 10
// output is padded with spaces; base 8 and 16 output with zeroes.
func fmtInt(w io.Writer, arg interface{}, base uint64, width int) {
	var (
		val uint64
		neg bool
	)

	switch v := arg.(type) {
	case uint8:
		val = uint64(v)
	case uint16:
		val = uint64(v)
	case uint32:
		val = uint64(v)
	case uint64:
		val = v
	case uint:
		val = uint64(v)
	case uintptr:
		val = uint64(v)
	case int8:
		val, neg = abs(int64(v))
	case int16:
		val, neg = abs(int64(v))
	case int32:
		val, neg = abs(int64(v))
	case int64:
		val, neg = abs(v)
	case int:
		val, neg = abs(int64(v))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if width > numBufSize-1 {
		width = numBufSize - 1
	}

	// Digits are produced right to left.
	pos := numBufSize
	for {
		pos--
		digit := byte(val % base)
		if digit < 10 {
			numBuf[pos] = '0' + digit
		} else {
			numBuf[pos] = 'a' + digit - 10
		}
		val /= base
		if val == 0 || pos == 1 {
			break
		}
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	if neg && padCh == ' ' {
		pos--
		numBuf[pos] = '-'
	}

	if neg && padCh == '0' {
		width--
	}

	for numBufSize-pos < width && pos > 1 {
		pos--
		numBuf[pos] = padCh
	}

	if neg && padCh == '0' {
		pos--
		numBuf[pos] = '-'
	}

	doWrite(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

func writeByte(w io.Writer, ch byte) {
	oneByte[0] = ch
	doWrite(w, oneByte)
}

// doWrite hides p from escape analysis. Without it the compiler assumes that
// p escapes through the io.Writer interface call and every Printf call site
// ends up allocating.
func doWrite(w io.Writer, p []byte) {
	realWrite(w, noEscape(unsafe.Pointer(&p)))
}

func realWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w == nil {
		_, _ = earlyBuffer.Write(p)
		return
	}
	_, _ = w.Write(p)
}

// noEscape hides a pointer from escape analysis (see runtime/stubs.go).
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
