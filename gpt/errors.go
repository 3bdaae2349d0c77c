package gpt

import (
	"errors"
	"fmt"
)

// Stage identifies which step of Parse rejected the input.
type Stage int

const (
	StageInput Stage = iota
	StageMBR
	StageHeader
	StagePartitions
)

func (s Stage) String() string {
	switch s {
	case StageInput:
		return "input"
	case StageMBR:
		return "mbr"
	case StageHeader:
		return "header"
	case StagePartitions:
		return "partitions"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrMBRSignatureMismatch = errors.New("MBR signature mismatch")
	ErrUnexpectedLayout     = errors.New("MBR partition 0 does not start at the GPT header LBA")
	ErrNotProtectiveMBR     = errors.New("no GPT protective MBR partition found")
	ErrSizeMismatch         = errors.New("protective MBR partition size does not match disk size")

	ErrInvalidHeaderSize       = errors.New("invalid GPT header size")
	ErrHeaderCRCMismatch       = errors.New("GPT header CRC32 mismatch")
	ErrHeaderSignatureMismatch = errors.New("GPT header signature mismatch")
	ErrUsableRangeInverted     = errors.New("last usable LBA is before first usable LBA")
	ErrUsableRangePastEnd      = errors.New("last usable LBA is past the end of the disk")
	ErrHeaderInUsableRange     = errors.New("GPT header LBA lies inside the usable range")

	ErrTooManyEntries            = errors.New("too many partition entries")
	ErrUnexpectedEntrySize       = errors.New("unexpected partition entry size")
	ErrBufferOverflow            = errors.New("GPT data extends past the end of the buffer")
	ErrPartitionArrayCRCMismatch = errors.New("partition entry array CRC32 mismatch")
)

// Error describes a failed GPT check. Kind is one of the Err* values above
// and is returned by Unwrap, so errors.Is(err, ErrHeaderCRCMismatch) works.
// Got and Want hold the compared values where the check has them.
type Error struct {
	Stage Stage
	Kind  error
	Got   uint64
	Want  uint64
}

func (e *Error) Error() string {
	if e.Got == 0 && e.Want == 0 {
		return fmt.Sprintf("gpt: %s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("gpt: %s: %v (got %#x, want %#x)", e.Stage, e.Kind, e.Got, e.Want)
}

func (e *Error) Unwrap() error { return e.Kind }

func failure(stage Stage, kind error, got, want uint64) *Error {
	return &Error{Stage: stage, Kind: kind, Got: got, Want: want}
}
