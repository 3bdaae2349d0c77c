package gpt

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

const (
	// MaxPartitionEntries bounds the size of the partition entry array.
	MaxPartitionEntries = 128

	// PartitionEntrySize is the only supported partition entry size.
	PartitionEntrySize = 128
)

// Partition attribute bits defined by the UEFI specification. Bits 48-63 are
// type-specific.
const (
	AttrRequiredPartition  = 1 << 0
	AttrNoBlockIOProtocol  = 1 << 1
	AttrLegacyBIOSBootable = 1 << 2
)

// PartitionEntry is one decoded record of the partition entry array.
type PartitionEntry struct {
	TypeGUID   [16]byte
	GUID       [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [72]byte
}

// IsUsed reports whether the entry describes a partition. Unused entries
// have an all-zero type GUID.
func (e PartitionEntry) IsUsed() bool {
	return e.TypeGUID != [16]byte{}
}

// TypeUUID returns the partition type GUID in RFC 4122 byte order.
func (e PartitionEntry) TypeUUID() uuid.UUID { return GUIDToUUID(e.TypeGUID[:]) }

// UniqueUUID returns the unique partition GUID in RFC 4122 byte order, as
// used in root=PARTUUID= kernel parameters.
func (e PartitionEntry) UniqueUUID() uuid.UUID { return GUIDToUUID(e.GUID[:]) }

// Sectors returns the number of logical blocks covered by the (inclusive)
// LBA range of the partition, or 0 if the range is inverted.
func (e PartitionEntry) Sectors() uint64 {
	if e.LastLBA < e.FirstLBA {
		return 0
	}
	return e.LastLBA - e.FirstLBA + 1
}

// PartitionName decodes the UTF-16LE partition name, which ends at the first
// NUL code unit.
func (e PartitionEntry) PartitionName() string {
	name := e.Name[:]
	for i := 0; i+1 < len(name); i += 2 {
		if name[i] == 0 && name[i+1] == 0 {
			name = name[:i]
			break
		}
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	b, err := dec.Bytes(name)
	if err != nil {
		return ""
	}
	return string(b)
}

// ReadPartitions locates the partition entry array described by h and
// verifies its bounds and CRC32. The returned slice refers to buf.
// Individual entries are not checked for overlap or uniqueness.
func ReadPartitions(buf []byte, h Header, sectorSize uint32) ([]byte, error) {
	if !h.valid() {
		return nil, failure(StagePartitions, ErrInvalidInput, uint64(len(h.b)), MinHeaderSize)
	}
	num := h.NumPartitionEntries()
	if num > MaxPartitionEntries {
		return nil, failure(StagePartitions, ErrTooManyEntries, uint64(num), MaxPartitionEntries)
	}

	entrySize := h.PartitionEntrySize()
	if entrySize != PartitionEntrySize {
		return nil, failure(StagePartitions, ErrUnexpectedEntrySize, uint64(entrySize), PartitionEntrySize)
	}

	if sectorSize == 0 {
		return nil, failure(StagePartitions, ErrInvalidInput, 0, 0)
	}
	bufLen := uint64(len(buf))
	total := uint64(num) * uint64(entrySize)
	lba := h.PartitionEntryLBA()
	if lba > bufLen/uint64(sectorSize) {
		// lba*sectorSize alone would already be past the end (and might
		// overflow uint64).
		return nil, failure(StagePartitions, ErrBufferOverflow, lba, bufLen/uint64(sectorSize))
	}
	off := lba * uint64(sectorSize)
	if off+total > bufLen {
		return nil, failure(StagePartitions, ErrBufferOverflow, off+total, bufLen)
	}
	array := buf[off : off+total : off+total]

	stored := h.PartitionEntryArrayCRC32()
	if calculated := Checksum(array, crcSeed); calculated != stored {
		return nil, failure(StagePartitions, ErrPartitionArrayCRCMismatch, uint64(stored), uint64(calculated))
	}
	return array, nil
}

func decodeEntries(array []byte) []PartitionEntry {
	parts := make([]PartitionEntry, len(array)/PartitionEntrySize)
	rd := bytes.NewReader(array)
	for idx := range parts {
		// array length is a multiple of PartitionEntrySize, which equals
		// binary.Size(PartitionEntry{}), so reading cannot fail.
		binary.Read(rd, binary.LittleEndian, &parts[idx])
	}
	return parts
}
