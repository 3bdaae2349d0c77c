package blockdev_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/gokrazy/bdev/blockdev"
	"github.com/gokrazy/bdev/gpt"
	"github.com/gokrazy/bdev/internal/disktest"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var img = disktest.Image{
	TotalSectors: 2048,
	Entries: []disktest.Entry{
		{TypeGUID: disktest.GUID(0xaa), GUID: disktest.GUID(1), FirstLBA: 34, LastLBA: 2013, Name: "root"},
	},
}

func writeCompressed(t *testing.T, path string, newWriter func(io.Writer) (io.WriteCloser, error)) {
	t.Helper()
	raw := filepath.Join(t.TempDir(), "disk.img")
	if err := img.WriteFile(raw); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(raw)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w, err := newWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "disk.img")
	if err := img.WriteFile(plain); err != nil {
		t.Fatal(err)
	}

	zst := filepath.Join(dir, "disk.img.zst")
	writeCompressed(t, zst, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})

	gz := filepath.Join(dir, "disk.img.gz")
	writeCompressed(t, gz, func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	})

	bz2 := filepath.Join(dir, "disk.img.bz2")
	writeCompressed(t, bz2, func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{})
	})

	for _, path := range []string{plain, zst, gz, bz2} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			d, err := blockdev.Read(path, blockdev.Options{})
			if err != nil {
				t.Fatal(err)
			}
			if got, want := d.SectorSize, uint32(512); got != want {
				t.Errorf("SectorSize = %d, want %d", got, want)
			}
			if got, want := d.TotalSectors, uint64(2048); got != want {
				t.Errorf("TotalSectors = %d, want %d", got, want)
			}
			if got, want := len(d.Buffer), gpt.BufferSize; got != want {
				t.Errorf("len(Buffer) = %d, want %d", got, want)
			}
			tbl, err := d.Parse(nil)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := len(tbl.Used()), 1; got != want {
				t.Errorf("len(Used()) = %d, want %d", got, want)
			}
		})
	}
}

func TestReadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := img.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	d, err := blockdev.Read(path, blockdev.Options{SectorSize: 4096, TotalSectors: 99})
	if err != nil {
		t.Fatal(err)
	}
	if d.SectorSize != 4096 || d.TotalSectors != 99 {
		t.Errorf("geometry = %d×%d, want 4096×99", d.TotalSectors, d.SectorSize)
	}
	// The image was created with 512 byte sectors.
	if _, err := d.Parse(nil); err == nil {
		t.Errorf("Parse unexpectedly succeeded with overridden geometry")
	}
}

func TestReadShortImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.img")
	short := disktest.Image{TotalSectors: 3, FirstUsableLBA: 2, LastUsableLBA: 2}
	if err := short.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	d, err := blockdev.Read(path, blockdev.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(d.Buffer), 3*512; got != want {
		t.Fatalf("len(Buffer) = %d, want %d", got, want)
	}
	if _, err := d.Parse(nil); !errors.Is(err, gpt.ErrBufferOverflow) {
		t.Errorf("Parse = %v, want %v", err, gpt.ErrBufferOverflow)
	}
}

func TestReadNotExist(t *testing.T) {
	_, err := blockdev.Read(filepath.Join(t.TempDir(), "missing.img"), blockdev.Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read = %v, want %v", err, os.ErrNotExist)
	}
}
