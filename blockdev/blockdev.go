// Package blockdev reads the leading sectors of a disk for GPT validation.
// A disk is either a block device, whose geometry is queried from the
// kernel, or a disk image file, optionally compressed with zstd (.zst),
// gzip (.gz) or bzip2 (.bz2).
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dsnet/compress/bzip2"
	"github.com/gokrazy/bdev/gpt"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Options override the detected disk geometry. Zero values mean "detect".
type Options struct {
	SectorSize   uint32
	TotalSectors uint64
}

// Disk holds the first gpt.BufferSize bytes of a disk (fewer for smaller
// disks) together with its geometry.
type Disk struct {
	Path         string
	SectorSize   uint32
	TotalSectors uint64
	Buffer       []byte
}

// Parser returns a gpt.Parser for the disk geometry. logf may be nil.
func (d *Disk) Parser(logf func(format string, v ...interface{})) *gpt.Parser {
	return &gpt.Parser{
		SectorSize:   d.SectorSize,
		TotalSectors: d.TotalSectors,
		Logf:         logf,
	}
}

// Parse validates the GPT of the disk.
func (d *Disk) Parse(logf func(format string, v ...interface{})) (*gpt.Table, error) {
	return d.Parser(logf).Parse(d.Buffer)
}

func decompressor(path string, r io.Reader) (io.ReadCloser, error) {
	switch filepath.Ext(path) {
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case ".gz":
		return gzip.NewReader(r)
	case ".bz2":
		return bzip2.NewReader(r, nil)
	default:
		return nil, nil
	}
}

// Read opens path and reads its leading sectors.
func Read(path string, opts Options) (*Disk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var rd io.Reader = f
	sectorSize := opts.SectorSize
	size := int64(-1) // unknown
	if st.Mode()&os.ModeDevice != 0 {
		ss, sz, err := deviceGeometry(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		if sectorSize == 0 {
			sectorSize = ss
		}
		size = sz
	} else {
		dec, err := decompressor(path, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		if dec != nil {
			defer dec.Close()
			rd = dec
		} else {
			size = st.Size()
		}
	}
	if sectorSize == 0 {
		sectorSize = gpt.DefaultSectorSize
	}

	buf := make([]byte, gpt.BufferSize)
	n, err := io.ReadFull(rd, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	totalSectors := opts.TotalSectors
	if totalSectors == 0 {
		if size < 0 {
			// Compressed images need to be decompressed entirely to learn
			// their size.
			rest, err := io.Copy(io.Discard, rd)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			size = int64(n) + rest
		}
		totalSectors = uint64(size) / uint64(sectorSize)
	}

	return &Disk{
		Path:         path,
		SectorSize:   sectorSize,
		TotalSectors: totalSectors,
		Buffer:       buf[:n],
	}, nil
}
