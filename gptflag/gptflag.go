// Package gptflag registers the disk geometry flags shared by tools which
// validate partition tables. Defaults come from the GPT_SECTOR_SIZE and
// GPT_TOTAL_SECTORS environment variables; zero means "detect".
package gptflag

import (
	"os"
	"strconv"

	"github.com/gokrazy/bdev/blockdev"
	"github.com/spf13/pflag"
)

var (
	sectorSize   = uint32(envUint("GPT_SECTOR_SIZE", 32))
	totalSectors = envUint("GPT_TOTAL_SECTORS", 64)
)

// envUint returns the value of the environment variable name, or 0 if it is
// unset or not a valid unsigned integer of the specified bit size.
func envUint(name string, bitSize int) uint64 {
	v, err := strconv.ParseUint(os.Getenv(name), 0, bitSize)
	if err != nil {
		return 0
	}
	return v
}

func RegisterPflags(fs *pflag.FlagSet) {
	fs.Uint32Var(&sectorSize,
		"sector_size",
		sectorSize,
		`logical block size in bytes (0 = query the block device, 512 for disk images)`)

	fs.Uint64Var(&totalSectors,
		"total_sectors",
		totalSectors,
		`disk capacity in logical blocks (0 = derive from the device or image size)`)
}

func SetSectorSize(s uint32) {
	sectorSize = s
}

func SetTotalSectors(n uint64) {
	totalSectors = n
}

func SectorSize() uint32 {
	return sectorSize
}

func TotalSectors() uint64 {
	return totalSectors
}

// Options returns the configured geometry for blockdev.Read.
func Options() blockdev.Options {
	return blockdev.Options{
		SectorSize:   sectorSize,
		TotalSectors: totalSectors,
	}
}
