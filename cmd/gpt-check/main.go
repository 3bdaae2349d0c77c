// gpt-check validates the GUID partition table of a disk or disk image and
// shows its partitions.
//
// Without a disk argument, the disk from which the system was booted is
// used.
package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gokrazy/bdev/blockdev"
	"github.com/gokrazy/bdev/gpt"
	"github.com/gokrazy/bdev/gptflag"
	"github.com/gokrazy/bdev/humanize"
	"github.com/gokrazy/bdev/rootdev"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errNoDisk = errors.New("no disk specified and the boot disk could not be determined")

func diskPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if dev := rootdev.BlockDevice(); dev != "" {
		return dev, nil
	}
	return "", errNoDisk
}

// readTable reads and validates the partition table of the disk named by
// args. Every failed check is logged at debug level.
func readTable(args []string) (*blockdev.Disk, *gpt.Table, error) {
	path, err := diskPath(args)
	if err != nil {
		return nil, nil, err
	}
	d, err := blockdev.Read(path, gptflag.Options())
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("%s: %d sectors of %d bytes", d.Path, d.TotalSectors, d.SectorSize)
	tbl, err := d.Parse(log.Debugf)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", d.Path, err)
	}
	return d, tbl, nil
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [disk]",
		Short: "verify that the GPT of a disk is valid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, tbl, err := readTable(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: GPT appears to be valid (%d of %d partition entries used)\n",
				d.Path, len(tbl.Used()), tbl.NumEntries())
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [disk]",
		Short: "show the GPT header and partitions of a disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, tbl, err := readTable(args)
			if err != nil {
				return err
			}
			h := tbl.Header
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Disk %s: %s, %d sectors of %d bytes\n",
				d.Path, humanize.Bytes(d.TotalSectors*uint64(d.SectorSize)), d.TotalSectors, d.SectorSize)
			fmt.Fprintf(out, "Disk GUID: %s\n", h.DiskGUID())
			fmt.Fprintf(out, "Usable LBAs: %d-%d, backup header at LBA %d\n",
				h.FirstUsableLBA(), h.LastUsableLBA(), h.AlternateLBA())
			fmt.Fprintf(out, "Partition entries: %d of %d bytes at LBA %d\n\n",
				h.NumPartitionEntries(), h.PartitionEntrySize(), h.PartitionEntryLBA())

			tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
			fmt.Fprintf(tw, "#\tStart\tEnd\tSize\tType\tName\tUUID\n")
			for idx, e := range tbl.Entries() {
				if !e.IsUsed() {
					continue
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
					idx+1,
					e.FirstLBA,
					e.LastLBA,
					humanize.Bytes(e.Sectors()*uint64(d.SectorSize)),
					e.TypeUUID(),
					e.PartitionName(),
					e.UniqueUUID())
			}
			return tw.Flush()
		},
	}
}

func uuidsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uuids [disk]",
		Short: "print the unique GUIDs of all partitions, one per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, tbl, err := readTable(args)
			if err != nil {
				return err
			}
			for _, e := range tbl.Used() {
				fmt.Fprintln(cmd.OutOrStdout(), gpt.GUIDFromBytes(e.GUID[:]))
			}
			return nil
		},
	}
}

func newCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:          "gpt-check",
		Short:        "validate and show the GUID partition table of a disk",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	gptflag.RegisterPflags(cmd.PersistentFlags())
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log the geometry and every failed check")

	cmd.AddCommand(verifyCmd())
	cmd.AddCommand(showCmd())
	cmd.AddCommand(uuidsCmd())
	return cmd
}

func main() {
	if err := newCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
