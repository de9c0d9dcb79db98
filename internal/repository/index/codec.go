package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/repository/atomicfile"
)

// File layout:
//
//	0..7    magic "RAGDXIX1"
//	8..15   dim (uint64 LE)
//	16..23  count (uint64 LE)
//	24..    count*dim float32 LE
//	last 4  CRC-32 IEEE of everything before it
const (
	headerSize  = 24
	trailerSize = 4
)

var fileMagic = [8]byte{'R', 'A', 'G', 'D', 'X', 'I', 'X', '1'}

// WriteTo encodes the index in its binary file format.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	var header [headerSize]byte
	copy(header[:8], fileMagic[:])
	binary.LittleEndian.PutUint64(header[8:16], uint64(x.dim))
	binary.LittleEndian.PutUint64(header[16:24], uint64(x.Len()))
	if _, err := bw.Write(header[:]); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	var buf [4]byte
	for _, f := range x.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := bw.Write(buf[:]); err != nil {
			return 0, fmt.Errorf("write vectors: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[:], crc.Sum32())
	if _, err := w.Write(buf[:]); err != nil {
		return 0, fmt.Errorf("write checksum: %w", err)
	}

	return int64(headerSize + len(x.data)*4 + trailerSize), nil
}

// Read decodes an index written by WriteTo.
func Read(r io.Reader) (*Index, error) {
	crc := crc32.NewIEEE()
	br := bufio.NewReader(r)
	tr := io.TeeReader(br, crc)

	var header [headerSize]byte
	if _, err := io.ReadFull(tr, header[:]); err != nil {
		return nil, corrupt("read header: %v", err)
	}
	if [8]byte(header[:8]) != fileMagic {
		return nil, corrupt("bad magic %q", header[:8])
	}
	dim := binary.LittleEndian.Uint64(header[8:16])
	count := binary.LittleEndian.Uint64(header[16:24])
	if dim > MaxDim || (dim == 0 && count > 0) {
		return nil, corrupt("bad dimension %d for %d vectors", dim, count)
	}

	x := New(int(dim))
	row := make([]byte, int(dim)*4)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(tr, row); err != nil {
			return nil, corrupt("read vector %d of %d: %v", i, count, err)
		}
		for j := 0; j < len(row); j += 4 {
			x.data = append(x.data, math.Float32frombits(binary.LittleEndian.Uint32(row[j:])))
		}
	}

	var trailer [trailerSize]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return nil, corrupt("read checksum: %v", err)
	}
	if got, want := crc.Sum32(), binary.LittleEndian.Uint32(trailer[:]); got != want {
		return nil, corrupt("checksum mismatch: got %08x, want %08x", got, want)
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, corrupt("trailing data after checksum")
	}

	return x, nil
}

// Save atomically writes the index to path.
func (x *Index) Save(path string) error {
	if err := atomicfile.WriteFile(path, x); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Load reads an index file.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	x, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", path, err)
	}
	return x, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCorruptIndex, fmt.Sprintf(format, args...))
}
