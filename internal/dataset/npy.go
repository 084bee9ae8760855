package dataset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrFormat reports a malformed or unsupported .npy file.
var ErrFormat = errors.New("unsupported npy format")

var npyMagic = []byte("\x93NUMPY")

// ReadNPY reads a NumPy .npy file into float32 values.
//
// Supported: format versions 1-3, little-endian '<f4' and '<f8' data,
// C (row-major) order.
func ReadNPY(path string) ([]float32, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, shape, err := DecodeNPY(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, shape, nil
}

// DecodeNPY decodes an .npy stream.
//
// File layout:
//
//	magic "\x93NUMPY", major, minor byte
//	header length: uint16 (v1) or uint32 (v2, v3), little-endian
//	header: python dict literal {'descr': '<f4', 'fortran_order': False, 'shape': (4, 64, 64), }
//	data
func DecodeNPY(r io.Reader) ([]float32, []int, error) {
	prefix := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if !bytes.Equal(prefix[:len(npyMagic)], npyMagic) {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrFormat, prefix[:len(npyMagic)])
	}

	var headerLen int
	switch major := prefix[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, nil, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, nil, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, nil, fmt.Errorf("%w: version %d", ErrFormat, major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	descr, fortran, shape, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, nil, err
	}
	if fortran {
		return nil, nil, fmt.Errorf("%w: fortran order", ErrFormat)
	}

	count := 1
	for _, d := range shape {
		count *= d
	}
	out := make([]float32, count)

	switch descr {
	case "<f4":
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, nil, fmt.Errorf("failed to read data: %w", err)
		}
	case "<f8":
		buf := make([]float64, count)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, nil, fmt.Errorf("failed to read data: %w", err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	default:
		return nil, nil, fmt.Errorf("%w: dtype %s", ErrFormat, descr)
	}
	return out, shape, nil
}

func parseNPYHeader(h string) (descr string, fortran bool, shape []int, err error) {
	field := func(key string) (string, bool) {
		i := strings.Index(h, "'"+key+"'")
		if i < 0 {
			return "", false
		}
		rest := h[i+len(key)+2:]
		colon := strings.Index(rest, ":")
		if colon < 0 {
			return "", false
		}
		return strings.TrimSpace(rest[colon+1:]), true
	}

	v, ok := field("descr")
	if !ok || len(v) < 2 {
		return "", false, nil, fmt.Errorf("%w: header without descr", ErrFormat)
	}
	end := strings.IndexByte(v[1:], v[0])
	if end < 0 {
		return "", false, nil, fmt.Errorf("%w: unterminated descr", ErrFormat)
	}
	descr = v[1 : end+1]

	v, ok = field("fortran_order")
	if !ok {
		return "", false, nil, fmt.Errorf("%w: header without fortran_order", ErrFormat)
	}
	fortran = strings.HasPrefix(v, "True")

	v, ok = field("shape")
	if !ok || !strings.HasPrefix(v, "(") {
		return "", false, nil, fmt.Errorf("%w: header without shape", ErrFormat)
	}
	closing := strings.IndexByte(v, ')')
	if closing < 0 {
		return "", false, nil, fmt.Errorf("%w: unterminated shape", ErrFormat)
	}
	for _, part := range strings.Split(v[1:closing], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, convErr := strconv.Atoi(part)
		if convErr != nil || d < 0 {
			return "", false, nil, fmt.Errorf("%w: bad shape entry %q", ErrFormat, part)
		}
		shape = append(shape, d)
	}
	return descr, fortran, shape, nil
}

// EncodeNPY writes data as a version 1.0 '<f4' .npy stream.
func EncodeNPY(w io.Writer, data []float32, shape []int) error {
	count := 1
	dims := make([]string, len(shape))
	for i, d := range shape {
		count *= d
		dims[i] = strconv.Itoa(d)
	}
	if count != len(data) {
		return fmt.Errorf("npy: shape %v holds %d values, got %d", shape, count, len(data))
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shapeStr)
	// Pad so the data starts on a 64-byte boundary, newline-terminated.
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("npy: header too long (%d bytes)", len(header))
	}

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{1, 0})
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	bw.WriteString(header)
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteNPY writes data to path as a '<f4' .npy file.
func WriteNPY(path string, data []float32, shape []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeNPY(f, data, shape); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
