package rootdev

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/gokrazy/bdev/blockdev"
	"github.com/gokrazy/bdev/internal/disktest"
	"github.com/google/go-cmp/cmp"
)

func setCmdline(t *testing.T, part string) {
	t.Helper()
	f, err := ioutil.TempFile("", "rootdevtest")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := fmt.Fprintf(f, "console=tty1 %s ro\n", part); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	cmdlineFile = f.Name()
}

// setDisks creates a fake sysfs and /dev containing the specified disk
// images, plus one partition entry which must be skipped.
func setDisks(t *testing.T, imgs map[string]disktest.Image) {
	t.Helper()
	dir := t.TempDir()
	sysBlockDir = filepath.Join(dir, "sys")
	devDir = filepath.Join(dir, "dev")
	for _, d := range []string{sysBlockDir, devDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	for name, img := range imgs {
		if err := os.MkdirAll(filepath.Join(sysBlockDir, name), 0755); err != nil {
			t.Fatal(err)
		}
		if err := img.WriteFile(filepath.Join(devDir, name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(sysBlockDir, "sda1"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(sysBlockDir, "sda1", "partition"), []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBlockDevice(t *testing.T) {
	for _, tt := range []struct {
		cmdline string
		want    string
	}{
		{"root=/dev/mmcblk0p2", "/dev/mmcblk0"},
		{"root=/dev/sda2", "/dev/sda"},
		{"ubd0=/dev/loop0p3", "/dev/loop0"},
		{"root=/dev/nvme0n1p2", "/dev/nvme0n1"},
	} {
		t.Run(tt.cmdline, func(t *testing.T) {
			setCmdline(t, tt.cmdline)
			if got, want := BlockDevice(), tt.want; got != want {
				t.Errorf("MustFind() = %v, want %v", got, want)
			}
		})
	}
}

func TestActiveRootPartition(t *testing.T) {
	for _, tt := range []struct {
		cmdline string
		want    int
	}{
		{"root=/dev/mmcblk0p2", 2},
		{"root=/dev/sda2", 2},
		{"ubd0=/dev/loop0p3", 3},
		{"root=PARTUUID=2e18c40c-02", 2},
		{"root=PARTUUID=80687db2-f3f9-427a-8199-165db4b50003", 3},
	} {
		t.Run(tt.cmdline, func(t *testing.T) {
			setCmdline(t, tt.cmdline)
			if got, want := ActiveRootPartition(), tt.want; got != want {
				t.Errorf("ActiveRootPartition() = %v, want %v", got, want)
			}
		})
	}
}

func TestInactiveRootPartition(t *testing.T) {
	setCmdline(t, "root=/dev/mmcblk0p2")
	if got, want := InactiveRootPartition(), 3; got != want {
		t.Errorf("InactiveRootPartition() = %v, want %v", got, want)
	}
}

func TestPartition(t *testing.T) {
	for _, tt := range []struct {
		cmdline string
		want    string
	}{
		{"root=/dev/mmcblk0p2", "/dev/mmcblk0p3"},
		{"root=/dev/sda2", "/dev/sda3"},
		{"ubd0=/dev/loop0p3", "/dev/loop0p3"},
		{"root=/dev/nvme0n1p2", "/dev/nvme0n1p3"},
	} {
		t.Run(tt.cmdline, func(t *testing.T) {
			setCmdline(t, tt.cmdline)
			const partNum = 3
			if got, want := Partition(partNum), tt.want; got != want {
				t.Errorf("Partition(%d) = %v, want %v", partNum, got, want)
			}
		})
	}
}

func TestPartitionCmdline(t *testing.T) {
	for _, tt := range []struct {
		cmdline string
		want    string
	}{
		{"root=/dev/mmcblk0p2", "/dev/mmcblk0p3"},
		{"root=/dev/sda2", "/dev/sda3"},
		{"ubd0=/dev/loop0p3", "/dev/loop0p3"},
		{"root=PARTUUID=2e18c40c-02", "PARTUUID=2e18c40c-03"},
		{"root=PARTUUID=80687DB2-F3F9-427A-8199-165DB4B50002", "PARTUUID=80687db2-f3f9-427a-8199-165db4b50003"},
	} {
		t.Run(tt.cmdline, func(t *testing.T) {
			setCmdline(t, tt.cmdline)
			const partNum = 3
			if got, want := PartitionCmdline(partNum), tt.want; got != want {
				t.Errorf("PartitionCmdline(%d) = %v, want %v", partNum, got, want)
			}
		})
	}
}

func TestBlockDevicePARTUUID(t *testing.T) {
	setDisks(t, map[string]disktest.Image{
		"sda": {
			DiskSignature: 0x2e18c40c,
			Entries: []disktest.Entry{
				{TypeGUID: disktest.GUID(0xaa), GUID: disktest.GUID(0x01), FirstLBA: 34, LastLBA: 1000},
			},
		},
		"sdb": {
			Entries: []disktest.Entry{
				{TypeGUID: disktest.GUID(0xaa), GUID: disktest.GUID(0x02), FirstLBA: 34, LastLBA: 1000},
				{
					TypeGUID: disktest.GUID(0xaa),
					// 80687db2-f3f9-427a-8199-165db4b50002 in on-disk byte order
					GUID:     [16]byte{0xb2, 0x7d, 0x68, 0x80, 0xf9, 0xf3, 0x7a, 0x42, 0x81, 0x99, 0x16, 0x5d, 0xb4, 0xb5, 0x00, 0x02},
					FirstLBA: 1001,
					LastLBA:  2000,
				},
			},
		},
	})
	for _, tt := range []struct {
		cmdline string
		want    string
	}{
		{"root=PARTUUID=2e18c40c-02", filepath.Join(devDir, "sda")},
		{"root=PARTUUID=80687db2-f3f9-427a-8199-165db4b50002", filepath.Join(devDir, "sdb")},
		{"root=PARTUUID=80687db2-f3f9-427a-8199-165db4b59902", ""},
		{"root=PARTUUID=deadbeef-02", ""},
	} {
		t.Run(tt.cmdline, func(t *testing.T) {
			setCmdline(t, tt.cmdline)
			if got, want := BlockDevice(), tt.want; got != want {
				t.Errorf("BlockDevice() = %q, want %q", got, want)
			}
		})
	}

	setCmdline(t, "root=PARTUUID=80687db2-f3f9-427a-8199-165db4b50002")
	if got, want := Partition(3), filepath.Join(devDir, "sdb3"); got != want {
		t.Errorf("Partition(3) = %q, want %q", got, want)
	}
	want := []string{
		"02020202-0202-0202-0202-020202020202",
		"80687DB2-F3F9-427A-8199-165DB4B50002",
	}
	if diff := cmp.Diff(want, PartitionUUIDs()); diff != "" {
		t.Fatalf("unexpected partition UUIDs: diff (-want +got):\n%s", diff)
	}
}

func TestPartitionUUIDs4Kn(t *testing.T) {
	setDisks(t, map[string]disktest.Image{
		"nvme0n1": {
			SectorSize:     4096,
			TotalSectors:   1024,
			FirstUsableLBA: 6,
			LastUsableLBA:  1018,
			Entries: []disktest.Entry{
				{TypeGUID: disktest.GUID(0xaa), GUID: disktest.GUID(0x03), FirstLBA: 6, LastLBA: 1018},
			},
		},
	})
	readOptions = blockdev.Options{SectorSize: 4096}
	t.Cleanup(func() { readOptions = blockdev.Options{} })

	setCmdline(t, "root=PARTUUID=03030303-0303-0303-0303-030303030303")
	if got, want := BlockDevice(), filepath.Join(devDir, "nvme0n1"); got != want {
		t.Errorf("BlockDevice() = %q, want %q", got, want)
	}
	want := []string{"03030303-0303-0303-0303-030303030303"}
	if diff := cmp.Diff(want, PartitionUUIDs()); diff != "" {
		t.Fatalf("unexpected partition UUIDs: diff (-want +got):\n%s", diff)
	}
}

func TestMustFindPanics(t *testing.T) {
	setCmdline(t, "console=tty1")
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("MustFind did not panic")
		}
	}()
	MustFind()
}
