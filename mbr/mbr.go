// Package mbr provides a read-only view of a legacy Master Boot Record, just
// enough to recognize the protective MBR which precedes a GUID partition
// table. Legacy MBR partitioning itself is not interpreted.
package mbr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// Size is the size of a Master Boot Record in bytes.
	Size = 512

	// BootSignature is the value stored little-endian at offset 510.
	BootSignature = 0xaa55

	// TypeGPTProtective is the partition type of the single partition
	// spanning the disk in a protective MBR.
	TypeGPTProtective = 0xee

	// NumRecords is the number of primary partition records.
	NumRecords = 4

	diskSignatureOffset = 440
	recordsOffset       = 446
	recordSize          = 16
	signatureOffset     = 510
)

// Record is one of the four primary partition records.
type Record struct {
	Status      uint8
	CHSStart    [3]byte
	OSType      uint8
	CHSEnd      [3]byte
	StartingLBA uint32
	SizeInLBA   uint32
}

// MBR is a view into the first Size bytes of a disk. It does not copy the
// underlying buffer.
type MBR struct {
	b []byte
}

// New returns a view of the MBR at the start of b.
func New(b []byte) (MBR, error) {
	if len(b) < Size {
		return MBR{}, fmt.Errorf("mbr: buffer too short: %d bytes, need %d", len(b), Size)
	}
	return MBR{b: b[:Size:Size]}, nil
}

// Bytes returns the underlying 512 bytes.
func (m MBR) Bytes() []byte { return m.b }

// Signature returns the boot signature (BootSignature for a valid MBR).
func (m MBR) Signature() uint16 {
	return binary.LittleEndian.Uint16(m.b[signatureOffset:])
}

// DiskSignature returns the 32-bit disk signature, which Linux uses for
// root=PARTUUID=SSSSSSSS-PP kernel parameters on MBR disks.
func (m MBR) DiskSignature() uint32 {
	return binary.LittleEndian.Uint32(m.b[diskSignatureOffset:])
}

// Record decodes primary partition record idx, which must be in [0,
// NumRecords).
func (m MBR) Record(idx int) Record {
	var r Record
	off := recordsOffset + idx*recordSize
	// binary.Read cannot fail: the record is exactly recordSize bytes.
	binary.Read(bytes.NewReader(m.b[off:off+recordSize]), binary.LittleEndian, &r)
	return r
}

// Records decodes all primary partition records.
func (m MBR) Records() [NumRecords]Record {
	var rs [NumRecords]Record
	for idx := range rs {
		rs[idx] = m.Record(idx)
	}
	return rs
}

// ProtectiveRecord returns the first record of type TypeGPTProtective.
func (m MBR) ProtectiveRecord() (int, Record, bool) {
	for idx, r := range m.Records() {
		if r.OSType == TypeGPTProtective {
			return idx, r, true
		}
	}
	return -1, Record{}, false
}
