// Package disktest builds protective MBR + GPT disk images for tests.
package disktest

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"golang.org/x/text/encoding/unicode"
)

// Entry is a partition entry to place in the image.
type Entry struct {
	TypeGUID   [16]byte
	GUID       [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       string
}

// Image describes a disk image. Zero values select the defaults documented on
// each field, which yield a valid GPT.
type Image struct {
	SectorSize   uint32 // default 512
	TotalSectors uint64 // default 2048
	BufferSize   int    // default 32 KiB

	// DiskSignature is stored at offset 440 of the MBR.
	DiskSignature uint32

	// ProtectiveSize overrides the size of the protective MBR partition
	// (default TotalSectors-1).
	ProtectiveSize uint32

	FirstUsableLBA uint64 // default 34
	LastUsableLBA  uint64 // default TotalSectors-34
	EntryLBA       uint64 // default 2
	NumEntries     uint32 // default 128
	EntrySize      uint32 // default 128
	DiskGUID       [16]byte

	Entries []Entry
}

const (
	headerSize = 92
	entrySize  = 128
)

func (img *Image) defaults() {
	if img.SectorSize == 0 {
		img.SectorSize = 512
	}
	if img.TotalSectors == 0 {
		img.TotalSectors = 2048
	}
	if img.BufferSize == 0 {
		img.BufferSize = 32 * 1024
	}
	if img.ProtectiveSize == 0 {
		img.ProtectiveSize = uint32(img.TotalSectors - 1)
	}
	if img.FirstUsableLBA == 0 {
		img.FirstUsableLBA = 34
	}
	if img.LastUsableLBA == 0 {
		img.LastUsableLBA = img.TotalSectors - 34
	}
	if img.EntryLBA == 0 {
		img.EntryLBA = 2
	}
	if img.NumEntries == 0 {
		img.NumEntries = 128
	}
	if img.EntrySize == 0 {
		img.EntrySize = entrySize
	}
}

// Bytes returns the first BufferSize bytes of the image.
func (img Image) Bytes() []byte {
	img.defaults()
	buf := make([]byte, img.BufferSize)

	// Protective MBR
	binary.LittleEndian.PutUint32(buf[440:], img.DiskSignature)
	rec := buf[446:]
	rec[4] = 0xee
	binary.LittleEndian.PutUint32(rec[8:], 1)
	binary.LittleEndian.PutUint32(rec[12:], img.ProtectiveSize)
	binary.LittleEndian.PutUint16(buf[510:], 0xaa55)

	// Partition entry array
	arraySize := uint64(img.NumEntries) * uint64(img.EntrySize)
	var arrayCRC uint32
	if off := img.EntryLBA * uint64(img.SectorSize); img.EntryLBA < uint64(img.BufferSize) && off+arraySize <= uint64(len(buf)) {
		array := buf[off : off+arraySize]
		utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
		for idx, e := range img.Entries {
			eoff := uint64(idx) * uint64(img.EntrySize)
			if eoff+entrySize > arraySize {
				break
			}
			b := array[eoff : eoff+entrySize]
			copy(b[0:16], e.TypeGUID[:])
			copy(b[16:32], e.GUID[:])
			binary.LittleEndian.PutUint64(b[32:], e.FirstLBA)
			binary.LittleEndian.PutUint64(b[40:], e.LastLBA)
			binary.LittleEndian.PutUint64(b[48:], e.Attributes)
			name, err := utf16.Bytes([]byte(e.Name))
			if err != nil {
				panic(err)
			}
			copy(b[56:128], name)
		}
		arrayCRC = crc32.ChecksumIEEE(array)
	}

	// Primary GPT header
	h := buf[img.SectorSize : img.SectorSize+headerSize]
	copy(h[0:8], "EFI PART")
	binary.LittleEndian.PutUint32(h[8:], 0x00010000)
	binary.LittleEndian.PutUint32(h[12:], headerSize)
	binary.LittleEndian.PutUint64(h[24:], 1)
	binary.LittleEndian.PutUint64(h[32:], img.TotalSectors-1)
	binary.LittleEndian.PutUint64(h[40:], img.FirstUsableLBA)
	binary.LittleEndian.PutUint64(h[48:], img.LastUsableLBA)
	copy(h[56:72], img.DiskGUID[:])
	binary.LittleEndian.PutUint64(h[72:], img.EntryLBA)
	binary.LittleEndian.PutUint32(h[80:], img.NumEntries)
	binary.LittleEndian.PutUint32(h[84:], img.EntrySize)
	binary.LittleEndian.PutUint32(h[88:], arrayCRC)
	FixHeaderCRC(buf, img.SectorSize)

	return buf
}

// FixHeaderCRC recomputes the CRC32 of the GPT header at LBA 1 of buf after
// a test modified it.
func FixHeaderCRC(buf []byte, sectorSize uint32) {
	h := buf[sectorSize:]
	size := binary.LittleEndian.Uint32(h[12:])
	binary.LittleEndian.PutUint32(h[16:], 0)
	binary.LittleEndian.PutUint32(h[16:], crc32.ChecksumIEEE(h[:size]))
}

// WriteFile writes the image to path, extended (sparsely) to its full size
// of TotalSectors*SectorSize bytes.
func (img Image) WriteFile(path string) error {
	buf := img.Bytes()
	img.defaults()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	if err := f.Truncate(int64(img.TotalSectors) * int64(img.SectorSize)); err != nil {
		return err
	}
	return f.Close()
}

// GUID returns a GUID (in on-disk byte order) whose bytes are all b, which is
// convenient for telling partitions apart.
func GUID(b byte) [16]byte {
	var g [16]byte
	for i := range g {
		g[i] = b
	}
	return g
}
