package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/inventory"
	"github.com/eugenetaranov/fwhelper/internal/parser"
	"github.com/eugenetaranov/fwhelper/internal/report"
)

// checkTransportCmd reports which transport each device answers on
var checkTransportCmd = &cobra.Command{
	Use:   "check-transport",
	Short: "Check SSH/Telnet reachability of every device",
	Long: `Probe every device in the device list and print
"address<TAB>ssh|telnet|Error". SSH is preferred when both answer.

Examples:
  fw check-transport --list switches.txt
  fw check-transport --list switches.txt --delay 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		addrs, err := inventory.LoadDeviceList(a.settings.List)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		records, _ := a.exec.CheckTransport(ctx, addrs)
		return a.save(records)
	},
}

// fetchCmd collects version and storage information
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Collect version and storage information from every device",
	Long: `Run "show version" and "dir" on every device, print one summary line
per device and save raw and parsed output to the output file.

Summary columns: hostname, address, model, image, version, running image,
free bytes.

Examples:
  fw fetch -u admin -p secret --list switches.txt
  fw fetch --format yaml -o fetch.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		targets, err := loadTargets(a)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		records, _ := a.exec.RunFetch(ctx, targets)
		return a.save(records)
	},
}

// parseCmd turns a saved fetch output into summary files
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Summarize a saved fetch output",
	Long: `Read the output file written by "fw fetch" and write a tab-separated
summary plus the lists of devices that failed authentication or
connectivity. No device is contacted.

Examples:
  fw parse -o output.json
  fw parse -o output.json --summary inventory.tsv`,
	Args: cobra.NoArgs,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().String("summary", "output.txt", "summary file")
	parseCmd.Flags().String("auth-failures", "auth_failures.txt", "file listing devices that failed authentication")
	parseCmd.Flags().String("connectivity-failures", "connectivity_failures.txt", "file listing unreachable devices")
}

func runParse(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(a.settings.Output)
	if err != nil {
		return fmt.Errorf("failed to open fetch output: %w", err)
	}
	records, err := report.ReadFetchRecords(f)
	f.Close()
	if err != nil {
		return err
	}
	report.SortFetchRecords(records)

	summaryPath, _ := cmd.Flags().GetString("summary")
	if err := writeFile(summaryPath, func(w *bufio.Writer) error {
		return report.WriteSummary(w, records)
	}); err != nil {
		return err
	}

	lists := map[string]fault.Kind{
		"auth-failures":         fault.Authentication,
		"connectivity-failures": fault.Connectivity,
	}
	for flag, kind := range lists {
		path, _ := cmd.Flags().GetString(flag)
		devices := report.FailedDevices(records, kind)
		if err := writeFile(path, func(w *bufio.Writer) error {
			_, err := w.WriteString(strings.Join(lo.Map(devices, func(d string, _ int) string { return d + "\n" }), ""))
			return err
		}); err != nil {
			return err
		}
		a.out.Info("%d device(s) with %s written to %s", len(devices), kind, path)
	}

	a.out.Info("Summary of %d device(s) written to %s", len(records), summaryPath)
	return nil
}

// pingCmd pings a list of destinations from every device
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping destinations from every device",
	Long: `Log in to every device in the device list and ping every address in
the ping list from it. Success rate and round-trip times are saved per
destination.

Examples:
  fw ping -u admin -p secret --list switches.txt --ping-list targets.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		targets, err := loadTargets(a)
		if err != nil {
			return err
		}
		destinations, err := inventory.LoadDeviceList(a.settings.PingList)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		records, _ := a.exec.RunPing(ctx, targets, destinations)
		return a.save(records)
	},
}

// transferCmd stages firmware on every device in the transfer list
var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Check firmware readiness and copy images where needed",
	Long: `For every record of the transfer list
(address, target version, source, size in bytes, md5), decide whether the
device already runs or already holds the image, check free space, and copy
and verify the image.

Nothing is written to any device unless --confirm-copy is given.

Examples:
  fw transfer -u admin -p secret --transfer-list transfer.tsv
  fw transfer -u admin -p secret --transfer-list transfer.tsv --confirm-copy`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		jobs, malformed, err := inventory.LoadTransferJobs(a.settings.TransferList, a.settings.Defaults())
		if err != nil {
			return err
		}
		if !a.settings.ConfirmCopy {
			a.out.Warn("Dry run: no image will be copied (use --confirm-copy)")
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, stats := a.exec.RunTransfers(ctx, jobs, malformed)
		if err := a.save(result.Records()); err != nil {
			return err
		}
		if stats.GetFailed() > 0 {
			return fmt.Errorf("%d device(s) failed", stats.GetFailed())
		}
		return nil
	},
}

// validateCmd checks a transfer list without contacting any device
var validateCmd = &cobra.Command{
	Use:   "validate <transfer-list> [transfer-list ...]",
	Short: "Validate one or more transfer lists",
	Long: `Parse transfer lists without executing them.

This checks for:
  - Five tab-separated fields per record
  - A non-negative integer size
  - A 32-digit hexadecimal md5

Examples:
  fw validate transfer.tsv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var hasErrors bool

		for _, path := range args {
			jobs, malformed, err := inventory.LoadTransferJobs(path, inventory.Defaults{})
			switch {
			case err != nil:
				fmt.Printf("FAIL: %s - %v\n", path, err)
				hasErrors = true
			case len(malformed) > 0:
				fmt.Printf("FAIL: %s - %d error(s)\n", path, len(malformed))
				for _, m := range malformed {
					fmt.Printf("  %s: %s\n", m.Device(), m.Error())
				}
				hasErrors = true
			default:
				fmt.Printf("OK: %s (%d jobs)\n", path, len(jobs))
			}
		}

		if hasErrors {
			return fmt.Errorf("one or more transfer lists failed validation")
		}
		return nil
	},
}

// templatesCmd lists registered parser templates
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available command parsers",
	Run: func(cmd *cobra.Command, args []string) {
		templates := parser.List()
		if len(templates) == 0 {
			fmt.Println("No templates registered.")
			return
		}

		fmt.Println("Available templates:")
		fmt.Println()
		for _, name := range templates {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Println()
		fmt.Printf("Total: %d templates\n", len(templates))
	},
}

func loadTargets(a *app) ([]connector.Target, error) {
	addrs, err := inventory.LoadDeviceList(a.settings.List)
	if err != nil {
		return nil, err
	}
	d := a.settings.Defaults()
	return lo.Map(addrs, func(addr string, _ int) connector.Target { return d.Target(addr) }), nil
}

func writeFile(path string, fn func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
