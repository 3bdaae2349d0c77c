package gpt

import (
	"encoding/binary"

	"github.com/google/uuid"
)

const (
	// HeaderLBA is the logical block address of the primary GPT header.
	HeaderLBA = 1

	// MinHeaderSize is the size of all defined GPT header fields.
	MinHeaderSize = 92

	// Signature identifies a GPT header.
	Signature = "EFI PART"

	crcOffset = 16
)

// Header is a view of a GPT header inside a disk buffer. Fields are decoded
// on access; the buffer is never copied or written.
type Header struct {
	b []byte
}

// valid reports whether h holds at least the defined header fields, which is
// the case for every Header returned by ReadHeader.
func (h Header) valid() bool { return len(h.b) >= MinHeaderSize }

func (h Header) u32(off int) uint32 { return binary.LittleEndian.Uint32(h.b[off:]) }
func (h Header) u64(off int) uint64 { return binary.LittleEndian.Uint64(h.b[off:]) }

// Bytes returns the Size() bytes covered by the header CRC.
func (h Header) Bytes() []byte { return h.b[:h.Size()] }

func (h Header) Signature() string { return string(h.b[0:8]) }
func (h Header) Revision() uint32  { return h.u32(8) }

// Size is the header size in bytes as recorded on disk.
func (h Header) Size() uint32 { return h.u32(12) }

func (h Header) CRC32() uint32          { return h.u32(crcOffset) }
func (h Header) MyLBA() uint64          { return h.u64(24) }
func (h Header) AlternateLBA() uint64   { return h.u64(32) }
func (h Header) FirstUsableLBA() uint64 { return h.u64(40) }
func (h Header) LastUsableLBA() uint64  { return h.u64(48) }

// DiskGUID returns the disk GUID in RFC 4122 byte order.
func (h Header) DiskGUID() uuid.UUID { return GUIDToUUID(h.b[56:72]) }

func (h Header) PartitionEntryLBA() uint64        { return h.u64(72) }
func (h Header) NumPartitionEntries() uint32      { return h.u32(80) }
func (h Header) PartitionEntrySize() uint32       { return h.u32(84) }
func (h Header) PartitionEntryArrayCRC32() uint32 { return h.u32(88) }

// headerChecksum computes the CRC32 of b as if its CRC field were zero.
func headerChecksum(b []byte) uint32 {
	var zero [4]byte
	crc := update(crcSeed, b[:crcOffset])
	crc = update(crc, zero[:])
	crc = update(crc, b[crcOffset+4:])
	return crc ^ crcSeed
}

// ReadHeader locates the primary GPT header at LBA 1 of buf and verifies its
// size, CRC32, signature and usable LBA range. lbaEnd is the last addressable
// LBA of the disk. The returned Header refers to buf.
func ReadHeader(buf []byte, sectorSize uint32, lbaEnd uint64) (Header, error) {
	off := uint64(HeaderLBA) * uint64(sectorSize)
	end := off + uint64(max(sectorSize, MinHeaderSize))
	if end > uint64(len(buf)) {
		return Header{}, failure(StageHeader, ErrBufferOverflow, end, uint64(len(buf)))
	}
	h := Header{b: buf[off:end:end]}

	size := h.Size()
	if size < MinHeaderSize || size > sectorSize {
		return Header{}, failure(StageHeader, ErrInvalidHeaderSize, uint64(size), uint64(sectorSize))
	}

	stored := h.CRC32()
	if calculated := headerChecksum(h.b[:size]); calculated != stored {
		return Header{}, failure(StageHeader, ErrHeaderCRCMismatch, uint64(stored), uint64(calculated))
	}

	if h.Signature() != Signature {
		return Header{}, failure(StageHeader, ErrHeaderSignatureMismatch,
			binary.LittleEndian.Uint64(h.b[0:8]),
			binary.LittleEndian.Uint64([]byte(Signature)))
	}

	if err := CheckLBARange(h, lbaEnd); err != nil {
		return Header{}, err
	}

	return h, nil
}

// CheckLBARange verifies that the usable LBA range of h is well-formed, ends
// no later than lbaEnd and does not contain the primary header.
func CheckLBARange(h Header, lbaEnd uint64) error {
	if !h.valid() {
		return failure(StageHeader, ErrInvalidInput, uint64(len(h.b)), MinHeaderSize)
	}
	first, last := h.FirstUsableLBA(), h.LastUsableLBA()
	if last < first {
		return failure(StageHeader, ErrUsableRangeInverted, last, first)
	}
	if last > lbaEnd {
		return failure(StageHeader, ErrUsableRangePastEnd, last, lbaEnd)
	}
	if first < HeaderLBA && HeaderLBA < last {
		return failure(StageHeader, ErrHeaderInUsableRange, first, last)
	}
	return nil
}
