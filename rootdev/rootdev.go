// Package rootdev provides functions to locate the root device from which
// the system was booted. root=PARTUUID= kernel parameters are resolved by
// validating the partition table of each disk.
package rootdev

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gokrazy/bdev/blockdev"
	"github.com/gokrazy/bdev/gpt"
	"github.com/gokrazy/bdev/mbr"
)

var (
	cmdlineFile = "/proc/cmdline"
	sysBlockDir = "/sys/class/block"
	devDir      = "/dev"

	// readOptions overrides the geometry of the disks which are read. The
	// zero value uses the geometry reported by the kernel.
	readOptions blockdev.Options
)

var (
	rootDeviceRe = regexp.MustCompile(`(?:root|ubd0)=(/dev/(?:mmcblk[0-9]+|nvme[0-9]+n[0-9]+|loop[0-9]+|[hsv]d[a-z]+))p?([0-9]+)`)
	partuuidRe   = regexp.MustCompile(`root=PARTUUID=([0-9a-fA-F-]+)`)
	mbrUUIDRe    = regexp.MustCompile(`^([0-9a-fA-F]{8})-([0-9a-fA-F]{2})$`)
	gptUUIDRe    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{10}([0-9a-fA-F]{2})$`)
)

type root struct {
	dev      string // e.g. /dev/mmcblk0, empty for PARTUUID
	partuuid string // e.g. 2e18c40c-02
	part     int
}

func find() (root, error) {
	cmdline, err := ioutil.ReadFile(cmdlineFile)
	if err != nil {
		return root{}, err
	}
	if matches := rootDeviceRe.FindStringSubmatch(string(cmdline)); matches != nil {
		part, _ := strconv.Atoi(matches[2])
		return root{dev: matches[1], part: part}, nil
	}
	if matches := partuuidRe.FindStringSubmatch(string(cmdline)); matches != nil {
		partuuid := strings.ToLower(matches[1])
		var partHex string
		if m := mbrUUIDRe.FindStringSubmatch(partuuid); m != nil {
			partHex = m[2]
		} else if m := gptUUIDRe.FindStringSubmatch(partuuid); m != nil {
			partHex = m[1]
		} else {
			return root{}, fmt.Errorf("unsupported PARTUUID %q", partuuid)
		}
		part, _ := strconv.ParseInt(partHex, 16, 0)
		return root{partuuid: partuuid, part: int(part)}, nil
	}
	return root{}, fmt.Errorf("kernel command line %q did not match %v or %v", string(cmdline), rootDeviceRe, partuuidRe)
}

// disks returns the paths of all whole-disk block devices.
func disks() []string {
	entries, err := os.ReadDir(sysBlockDir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(sysBlockDir, e.Name(), "partition")); err == nil {
			continue // partition, not a disk
		}
		paths = append(paths, filepath.Join(devDir, e.Name()))
	}
	return paths
}

// hasPartUUID reports whether the disk at path contains the partition
// identified by partuuid.
func hasPartUUID(path, partuuid string) bool {
	d, err := blockdev.Read(path, readOptions)
	if err != nil {
		return false
	}
	if m := mbrUUIDRe.FindStringSubmatch(partuuid); m != nil {
		mb, err := mbr.New(d.Buffer)
		if err != nil {
			return false
		}
		return fmt.Sprintf("%08x", mb.DiskSignature()) == m[1]
	}
	tbl, err := d.Parse(nil)
	if err != nil {
		return false
	}
	for _, e := range tbl.Used() {
		if e.UniqueUUID().String() == partuuid {
			return true
		}
	}
	return false
}

func (r root) blockDevice() string {
	if r.dev != "" {
		return r.dev
	}
	for _, path := range disks() {
		if hasPartUUID(path, r.partuuid) {
			return path
		}
	}
	return ""
}

// MustFind returns the device from which the system was booted. It is safe to
// append a partition number to the resulting string. MustFind works once
// /proc is mounted.
func MustFind() string {
	r, err := find()
	if err != nil {
		panic(fmt.Sprintf("rootdev.MustFind: %v", err))
	}
	dev := r.blockDevice()
	if dev == "" {
		panic(fmt.Sprintf("rootdev.MustFind: no disk contains PARTUUID=%s", r.partuuid))
	}
	return dev
}

// BlockDevice returns the disk from which the system was booted, e.g.
// /dev/mmcblk0, or the empty string if it cannot be determined.
func BlockDevice() string {
	r, err := find()
	if err != nil {
		return ""
	}
	return r.blockDevice()
}

// ActiveRootPartition returns the number of the root partition, or 0 if it
// cannot be determined.
func ActiveRootPartition() int {
	r, err := find()
	if err != nil {
		return 0
	}
	return r.part
}

// InactiveRootPartition returns the number of the root partition which is
// not currently in use (gokrazy alternates between partitions 2 and 3).
func InactiveRootPartition() int {
	if ActiveRootPartition() == 2 {
		return 3
	}
	return 2
}

func partitionPath(dev string, num int) string {
	if dev == "" {
		return ""
	}
	if last := dev[len(dev)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", dev, num)
	}
	return fmt.Sprintf("%s%d", dev, num)
}

// Partition returns the device file of partition num on the boot disk, e.g.
// /dev/mmcblk0p3.
func Partition(num int) string {
	return partitionPath(BlockDevice(), num)
}

// PartitionCmdline returns how to refer to partition num on the kernel
// command line: PARTUUID= if the system was booted that way, the device file
// otherwise.
func PartitionCmdline(num int) string {
	r, err := find()
	if err != nil {
		return ""
	}
	if r.partuuid == "" {
		return partitionPath(r.dev, num)
	}
	return fmt.Sprintf("PARTUUID=%s%02x", r.partuuid[:len(r.partuuid)-2], num)
}

// PartitionUUIDs returns the GPT partition ids of the boot disk, which is
// empty if the disk has no valid GPT.
func PartitionUUIDs() []string {
	dev := BlockDevice()
	if dev == "" {
		return nil
	}
	d, err := blockdev.Read(dev, readOptions)
	if err != nil {
		return nil
	}
	tbl, err := d.Parse(nil)
	if err != nil {
		return nil
	}
	var uuids []string
	for _, e := range tbl.Used() {
		uuids = append(uuids, gpt.GUIDFromBytes(e.GUID[:]))
	}
	return uuids
}
