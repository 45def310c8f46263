package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/resgo"
	"github.com/hupe1980/resgo/cachefile"
	"github.com/hupe1980/resgo/resource"
)

var errRecordNotFound = errors.New("record not found")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resgo",
		Short: "Inspect resgo cache files and configuration",
		Long: `resgo inspects the disk overflow files written by a resgo engine.

Examples:
  # List the records of a cache file
  resgo scan /tmp/resgo/resgo-cache-3f1c.bin

  # Write the payload of handle 42 to stdout
  resgo dump /tmp/resgo/resgo-cache-3f1c.bin 42 --compression zstd > mesh.bin

  # Print the effective engine configuration
  resgo config --file resgo.yaml`,
		SilenceUsage: true,
	}
	root.AddCommand(newScanCmd(), newDumpCmd(), newConfigCmd())
	return root
}

type scanEntry struct {
	ID     uint32 `yaml:"id"`
	Offset int64  `yaml:"offset"`
	Size   int    `yaml:"size"`
}

func newScanCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "List the records of a cache file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []scanEntry
			err := cachefile.ScanFile(args[0], func(r cachefile.Record) error {
				entries = append(entries, scanEntry{ID: uint32(r.ID), Offset: r.Offset, Size: len(r.Payload)})
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(entries)
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "HANDLE\tOFFSET\tSIZE")
				var total int
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%d\t%d\n", e.ID, e.Offset, e.Size)
					total += e.Size
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d records, %d payload bytes\n", len(entries), total)
				return nil
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table|yaml")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var compression string
	cmd := &cobra.Command{
		Use:   "dump FILE HANDLE",
		Short: "Write the decoded payload of one record to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil || n == 0 {
				return fmt.Errorf("invalid handle %q", args[1])
			}
			id := resource.ID(n)
			c, err := cachefile.ParseCompression(compression)
			if err != nil {
				return err
			}

			var (
				payload []byte
				found   bool
			)
			err = cachefile.ScanFile(args[0], func(r cachefile.Record) error {
				if r.ID != id {
					return nil
				}
				// the last record wins; earlier ones were unregistered
				payload = append(payload[:0], r.Payload...)
				found = true
				return nil
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: handle %d in %s", errRecordNotFound, id, args[0])
			}

			raw, err := cachefile.DecodePayload(c, payload)
			if err != nil {
				return fmt.Errorf("decode handle %d: %w", id, err)
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
	cmd.Flags().StringVarP(&compression, "compression", "c", "none", "Payload compression: none|lz4|zstd")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective engine configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := resgo.DefaultConfig()
			if file != "" {
				var err error
				if cfg, err = resgo.LoadConfig(file); err != nil {
					return err
				}
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML config file")
	return cmd
}
