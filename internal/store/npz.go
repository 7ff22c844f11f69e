package store

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
)

// npyMagic is the NPY format magic string followed by version 1.0.
var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y', 1, 0}

// Array is a little-endian float32 tensor with a 1-D or 2-D shape, the
// payload of one named entry in an NPZ archive.
type Array struct {
	Shape []int
	Data  []float32
}

// VectorArray wraps a single embedding as a 1-D array.
func VectorArray(v []float32) Array {
	return Array{Shape: []int{len(v)}, Data: v}
}

// MatrixArray flattens a set of equal-length embeddings into a 2-D array.
func MatrixArray(rows [][]float32) Array {
	if len(rows) == 0 {
		return Array{Shape: []int{0, 0}}
	}
	dim := len(rows[0])
	data := make([]float32, 0, len(rows)*dim)
	for _, row := range rows {
		data = append(data, row...)
	}
	return Array{Shape: []int{len(rows), dim}, Data: data}
}

// Vector returns the array as a single embedding. 2-D arrays with one row
// are accepted as vectors.
func (a Array) Vector() ([]float32, error) {
	switch len(a.Shape) {
	case 1:
		return a.Data, nil
	case 2:
		if a.Shape[0] == 1 {
			return a.Data, nil
		}
	}
	return nil, fmt.Errorf("array shape %v is not a vector", a.Shape)
}

// Matrix returns the array as a slice of embeddings.
func (a Array) Matrix() ([][]float32, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("array shape %v is not a matrix", a.Shape)
	}
	rows, dim := a.Shape[0], a.Shape[1]
	out := make([][]float32, rows)
	for i := range rows {
		out[i] = a.Data[i*dim : (i+1)*dim]
	}
	return out, nil
}

// WriteNPZ writes named arrays to an NPZ archive (a zip of NPY v1.0 entries,
// deflate-compressed). The parent directory is created when missing and the
// file is written atomically via a temp file rename.
func WriteNPZ(path string, arrays map[string]Array) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	if err := writeNPZTo(f, arrays); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing archive: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming archive into place: %w", err)
	}
	return nil
}

func writeNPZTo(w io.Writer, arrays map[string]Array) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	// Deterministic entry order keeps archives byte-stable across builds.
	names := make([]string, 0, len(arrays))
	for name := range arrays {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name + ".npy",
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("creating archive entry %s: %w", name, err)
		}
		if err := writeNPY(entry, arrays[name]); err != nil {
			return fmt.Errorf("writing array %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zip writer: %w", err)
	}
	return nil
}

// ReadNPZ loads all arrays from an NPZ archive.
func ReadNPZ(path string) (map[string]Array, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)

	arrays := make(map[string]Array, len(zr.File))
	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, ".npy")

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		arr, err := readNPY(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading array %s: %w", name, err)
		}
		arrays[name] = arr
	}

	return arrays, nil
}

// writeNPY writes a single NPY v1.0 entry: magic, padded header dict, then
// little-endian float32 data.
func writeNPY(w io.Writer, arr Array) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': %s, }", shapeTuple(arr.Shape))

	// Total of magic (8), header length field (2) and header must be a
	// multiple of 64; the header ends with a newline.
	padded := len(npyMagic) + 2 + len(header) + 1
	if rem := padded % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	buf := make([]byte, 4*len(arr.Data))
	for i, v := range arr.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// readNPY parses a single NPY entry. Both float32 ('<f4') and float64
// ('<f8') payloads are accepted; float64 data is narrowed to float32.
func readNPY(r io.Reader) (Array, error) {
	head := make([]byte, len(npyMagic))
	if _, err := io.ReadFull(r, head); err != nil {
		return Array{}, fmt.Errorf("reading magic: %w", err)
	}
	if !bytes.Equal(head[:6], npyMagic[:6]) {
		return Array{}, fmt.Errorf("not an NPY entry")
	}
	if head[6] != 1 {
		return Array{}, fmt.Errorf("unsupported NPY version %d.%d", head[6], head[7])
	}

	var headerLen uint16
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return Array{}, fmt.Errorf("reading header length: %w", err)
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return Array{}, fmt.Errorf("reading header: %w", err)
	}
	header := string(headerBytes)

	descr, err := headerField(header, "descr")
	if err != nil {
		return Array{}, err
	}
	if descr != "<f4" && descr != "<f8" {
		return Array{}, fmt.Errorf("unsupported dtype %q", descr)
	}
	if order, err := headerField(header, "fortran_order"); err != nil || order != "False" {
		return Array{}, fmt.Errorf("fortran-ordered arrays are not supported")
	}

	shape, err := parseShape(header)
	if err != nil {
		return Array{}, err
	}

	count := 1
	for _, dim := range shape {
		count *= dim
	}

	data := make([]float32, count)
	if descr == "<f4" {
		raw := make([]byte, 4*count)
		if _, err := io.ReadFull(r, raw); err != nil {
			return Array{}, fmt.Errorf("reading float32 data: %w", err)
		}
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	} else {
		raw := make([]byte, 8*count)
		if _, err := io.ReadFull(r, raw); err != nil {
			return Array{}, fmt.Errorf("reading float64 data: %w", err)
		}
		for i := range data {
			data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	}

	return Array{Shape: shape, Data: data}, nil
}

// shapeTuple renders a shape as a Python tuple literal: (512,) or (10, 512).
func shapeTuple(shape []int) string {
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = strconv.Itoa(dim)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// headerField extracts a quoted or bare value for a key from the NPY header
// dict without needing a Python parser.
func headerField(header, key string) (string, error) {
	idx := strings.Index(header, "'"+key+"':")
	if idx < 0 {
		return "", fmt.Errorf("header missing %q", key)
	}
	rest := strings.TrimLeft(header[idx+len(key)+3:], " ")
	if strings.HasPrefix(rest, "'") {
		end := strings.Index(rest[1:], "'")
		if end < 0 {
			return "", fmt.Errorf("unterminated value for %q", key)
		}
		return rest[1 : 1+end], nil
	}
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", fmt.Errorf("unterminated value for %q", key)
	}
	return strings.TrimSpace(rest[:end]), nil
}

// parseShape extracts the shape tuple from the NPY header dict.
func parseShape(header string) ([]int, error) {
	idx := strings.Index(header, "'shape':")
	if idx < 0 {
		return nil, fmt.Errorf("header missing shape")
	}
	rest := header[idx+len("'shape':"):]
	open := strings.Index(rest, "(")
	closing := strings.Index(rest, ")")
	if open < 0 || closing < open {
		return nil, fmt.Errorf("malformed shape tuple")
	}

	var shape []int
	for part := range strings.SplitSeq(rest[open+1:closing], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, err := strconv.Atoi(part)
		if err != nil || dim < 0 {
			return nil, fmt.Errorf("malformed shape dimension %q", part)
		}
		shape = append(shape, dim)
	}
	if len(shape) == 0 || len(shape) > 2 {
		return nil, fmt.Errorf("unsupported shape rank %d", len(shape))
	}
	return shape, nil
}

