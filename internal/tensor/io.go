package tensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/born-ml/positnn/internal/posit"
)

// MaxElements is the largest element count Read accepts.
const MaxElements = 1 << 28

// Write serializes t as rank, size, shape, strides and then every element
// converted to file format G, each stored as a little-endian bit pattern of
// G's byte width.
func Write[G, F posit.Format](w io.Writer, t *Tensor[F]) error {
	header := make([]uint64, 0, 2+2*t.Dim())
	header = append(header, uint64(t.Dim()), uint64(t.Size()))
	for _, d := range t.shape {
		header = append(header, uint64(d))
	}
	for _, s := range t.strides {
		header = append(header, uint64(s))
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write tensor header: %w", err)
	}

	width := posit.ConfigOf[G]().Bytes()
	buf := make([]byte, width*t.Size())
	for i, v := range t.data {
		putBits(buf[i*width:], width, posit.Convert[G](v).Bits())
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// Read deserializes a tensor written by Write with the same file format G
// and converts the elements to F.
func Read[G, F posit.Format](r io.Reader) (*Tensor[F], error) {
	var counts [2]uint64
	if err := binary.Read(r, binary.LittleEndian, &counts); err != nil {
		return nil, fmt.Errorf("failed to read tensor header: %w", err)
	}
	if counts[0] > 8 {
		return nil, fmt.Errorf("%w: rank %d", ErrCorrupt, counts[0])
	}
	if counts[1] > MaxElements {
		return nil, fmt.Errorf("%w: size %d exceeds %d elements", ErrCorrupt, counts[1], MaxElements)
	}
	dim, size := int(counts[0]), int(counts[1])

	dims := make([]uint64, 2*dim)
	if err := binary.Read(r, binary.LittleEndian, dims); err != nil {
		return nil, fmt.Errorf("failed to read tensor shape: %w", err)
	}
	shape := make(Shape, dim)
	n := uint64(1)
	for i := range shape {
		d := dims[i]
		if d == 0 || d > MaxElements || n*d > MaxElements {
			return nil, fmt.Errorf("%w: dimension %d is %d", ErrCorrupt, i, d)
		}
		n *= d
		shape[i] = int(d)
	}
	if shape.NumElements() != size {
		return nil, fmt.Errorf("%w: size %d does not match shape %v", ErrCorrupt, size, shape)
	}
	strides := shape.ComputeStrides()
	for i, s := range strides {
		if int(dims[dim+i]) != s {
			return nil, fmt.Errorf("%w: stride %d is %d, want %d", ErrCorrupt, i, dims[dim+i], s)
		}
	}

	width := posit.ConfigOf[G]().Bytes()
	// The buffer grows with the data actually present, so a truncated stream
	// claiming a large size fails before allocating it.
	var data bytes.Buffer
	if _, err := io.CopyN(&data, r, int64(width*size)); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	buf := data.Bytes()
	out := New[F](shape)
	for i := range out.data {
		out.data[i] = posit.Convert[F](posit.FromBits[G](getBits(buf[i*width:], width)))
	}
	return out, nil
}

// ReadInto reads a tensor and replaces dst's contents. The stored shape must
// match dst's shape.
func ReadInto[G, F posit.Format](r io.Reader, dst *Tensor[F]) error {
	t, err := Read[G, F](r)
	if err != nil {
		return err
	}
	if !t.shape.Equal(dst.shape) {
		return fmt.Errorf("%w: stored %v, expected %v", ErrShapeMismatch, t.shape, dst.shape)
	}
	copy(dst.data, t.data)
	return nil
}

func putBits(b []byte, width int, v uint32) {
	for i := range width {
		b[i] = byte(v >> (8 * i))
	}
}

func getBits(b []byte, width int) uint32 {
	var v uint32
	for i := range width {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
