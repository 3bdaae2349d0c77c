// Package gpt validates and decodes the GUID partition table (GPT) at the
// start of a disk: the protective MBR, the primary GPT header and the
// partition entry array.
//
// Parsing works on a buffer holding the first sectors of the disk, as read by
// the caller (see package blockdev). It never performs I/O and never modifies
// the buffer. The backup header is not consulted, and a corrupt primary GPT
// is reported, not repaired.
package gpt

import (
	"errors"
	"io"

	"github.com/gokrazy/bdev/mbr"
)

const (
	// BufferSize is enough to hold the protective MBR, the GPT header and a
	// full partition entry array starting at LBA 2, for sector sizes up to
	// 4096 bytes.
	BufferSize = 32 * 1024

	// DefaultSectorSize is the logical block size assumed when none is
	// known.
	DefaultSectorSize = 512

	// protectiveSizeUnknown marks a protective partition on a disk too large
	// for its size to be represented.
	protectiveSizeUnknown = 0xffffffff
)

// CheckMBR verifies that buf starts with a protective MBR whose GPT
// protective partition spans a disk of totalSectors sectors.
func CheckMBR(buf []byte, totalSectors uint64) (mbr.MBR, error) {
	if totalSectors == 0 {
		return mbr.MBR{}, failure(StageMBR, ErrInvalidInput, 0, 0)
	}
	m, err := mbr.New(buf)
	if err != nil {
		return mbr.MBR{}, failure(StageMBR, ErrInvalidInput, uint64(len(buf)), mbr.Size)
	}

	if sig := m.Signature(); sig != mbr.BootSignature {
		return mbr.MBR{}, failure(StageMBR, ErrMBRSignatureMismatch, uint64(sig), mbr.BootSignature)
	}

	if start := m.Record(0).StartingLBA; start != HeaderLBA {
		return mbr.MBR{}, failure(StageMBR, ErrUnexpectedLayout, uint64(start), HeaderLBA)
	}

	_, rec, ok := m.ProtectiveRecord()
	if !ok {
		return mbr.MBR{}, failure(StageMBR, ErrNotProtectiveMBR, uint64(m.Record(0).OSType), mbr.TypeGPTProtective)
	}

	actual := totalSectors - 1
	if uint64(rec.SizeInLBA) != actual && rec.SizeInLBA != protectiveSizeUnknown {
		return mbr.MBR{}, failure(StageMBR, ErrSizeMismatch, uint64(rec.SizeInLBA), actual)
	}

	return m, nil
}

// Table is a validated GPT. It refers to the buffer it was parsed from.
type Table struct {
	MBR    mbr.MBR
	Header Header

	array []byte
}

// EntryArray returns the raw partition entry array.
func (t *Table) EntryArray() []byte { return t.array }

// NumEntries returns the number of entries in the partition entry array,
// including unused ones.
func (t *Table) NumEntries() int { return len(t.array) / PartitionEntrySize }

// Entries decodes all entries of the partition entry array, including
// unused ones, in on-disk order.
func (t *Table) Entries() []PartitionEntry {
	return decodeEntries(t.array)
}

// Used returns the entries which describe a partition.
func (t *Table) Used() []PartitionEntry {
	var used []PartitionEntry
	for _, e := range t.Entries() {
		if e.IsUsed() {
			used = append(used, e)
		}
	}
	return used
}

// Parser validates GPTs of a disk with the given geometry.
type Parser struct {
	// SectorSize is the logical block size in bytes, at least 512.
	SectorSize uint32

	// TotalSectors is the capacity of the disk in logical blocks.
	TotalSectors uint64

	// Logf, if non-nil, is called once with a diagnostic for every
	// rejected buffer.
	Logf func(format string, v ...interface{})
}

func (p *Parser) logf(format string, v ...interface{}) {
	if p.Logf != nil {
		p.Logf(format, v...)
	}
}

// Parse runs the MBR, header and partition entry checks in order and returns
// the validated table. The first failing check ends parsing; its error is a
// *Error identifying the stage. No Table is returned on failure.
func (p *Parser) Parse(buf []byte) (*Table, error) {
	t, err := p.parse(buf)
	if err != nil {
		p.logf("%v", err)
		return nil, err
	}
	return t, nil
}

func (p *Parser) parse(buf []byte) (*Table, error) {
	if len(buf) == 0 {
		return nil, failure(StageInput, ErrInvalidInput, 0, 0)
	}
	if p.SectorSize < mbr.Size {
		return nil, failure(StageInput, ErrInvalidInput, uint64(p.SectorSize), mbr.Size)
	}
	if p.TotalSectors == 0 {
		return nil, failure(StageInput, ErrInvalidInput, 0, 0)
	}

	m, err := CheckMBR(buf, p.TotalSectors)
	if err != nil {
		return nil, err
	}

	h, err := ReadHeader(buf, p.SectorSize, p.TotalSectors-1)
	if err != nil {
		return nil, err
	}

	array, err := ReadPartitions(buf, h, p.SectorSize)
	if err != nil {
		return nil, err
	}

	return &Table{
		MBR:    m,
		Header: h,
		array:  array,
	}, nil
}

// Parse validates the GPT in buf, which holds the first sectors of a disk of
// totalSectors logical blocks of sectorSize bytes each.
func Parse(buf []byte, sectorSize uint32, totalSectors uint64) (*Table, error) {
	p := Parser{
		SectorSize:   sectorSize,
		TotalSectors: totalSectors,
	}
	return p.Parse(buf)
}

// readBuffer reads up to BufferSize bytes from r. Short disk images are not
// an error; the checks reject them if the GPT does not fit.
func readBuffer(r io.Reader) ([]byte, error) {
	buf := make([]byte, BufferSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// PartitionEntries validates the GPT at the start of r and returns all used
// partition entries.
func PartitionEntries(r io.Reader, sectorSize uint32, totalSectors uint64) ([]PartitionEntry, error) {
	buf, err := readBuffer(r)
	if err != nil {
		return nil, err
	}
	t, err := Parse(buf, sectorSize, totalSectors)
	if err != nil {
		return nil, err
	}
	return t.Used(), nil
}

// PartitionUUIDs returns the ids of all used GPT partitions on the disk,
// assuming 512 byte sectors. The disk size is determined by seeking to the
// end of r. A disk without a valid GPT has no partition ids.
func PartitionUUIDs(r io.ReadSeeker) []string {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	parts, err := PartitionEntries(r, DefaultSectorSize, uint64(size)/DefaultSectorSize)
	if err != nil {
		return nil
	}
	uuids := make([]string, 0, len(parts))
	for _, p := range parts {
		uuids = append(uuids, GUIDFromBytes(p.GUID[:]))
	}
	return uuids
}
