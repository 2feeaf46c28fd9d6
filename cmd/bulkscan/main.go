// Command bulkscan runs the Phase-1 scheduling and recursion engine
// against a disk image or plain file, writing an XML run report. It
// wires github.com/urfave/cli/v2 flags onto bulkscan.Config the same
// way cmd/ublk-mem wired flag.FlagSet onto ublk.DeviceParams, and
// handles SIGINT/SIGTERM the way cmd/ublk-mem shuts a device down
// instead of stopping a driver run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/go-forensics/bulkscan"
	"github.com/go-forensics/bulkscan/internal/image/file"
	"github.com/go-forensics/bulkscan/internal/logging"
	"github.com/go-forensics/bulkscan/internal/report"
	"github.com/go-forensics/bulkscan/internal/scan"
	"github.com/go-forensics/bulkscan/scanners/gzipscan"
	"github.com/go-forensics/bulkscan/scanners/zeroscan"
)

func main() {
	app := &cli.App{
		Name:  "bulkscan",
		Usage: "forensic bulk-data scanning engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "optional YAML config file, layered under flag overrides"},
			&cli.IntFlag{Name: "threads", Aliases: []string{"j"}, Value: 0, Usage: "worker count (0 = config/default)"},
			&cli.IntFlag{Name: "page-size", Value: 0, Usage: "logical page size in bytes (0 = config/default)"},
			&cli.Uint64Flag{Name: "offset-start", Usage: "opt_offset_start"},
			&cli.Uint64Flag{Name: "offset-end", Usage: "opt_offset_end (0 = unset)"},
			&cli.Uint64Flag{Name: "page-start", Usage: "opt_page_start"},
			&cli.Float64Flag{Name: "sampling-fraction", Usage: "0 for sequential mode, else 0<f<0.2"},
			&cli.IntFlag{Name: "sampling-passes", Value: 0, Usage: "sampling_passes (0 = config/default)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "opt_quiet"},
			&cli.BoolFlag{Name: "report-read-errors", Usage: "opt_report_read_errors"},
			&cli.BoolFlag{Name: "hash", Usage: "enable the rolling whole-image SHA-1 (only meaningful sequential from offset 0)"},
			&cli.StringFlag{Name: "report", Aliases: []string{"o"}, Value: "-", Usage: "XML report output path, '-' for stdout"},
		},
		ArgsUsage: "<image-path>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bulkscan:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one <image-path> argument", 2)
	}
	imagePath := c.Args().Get(0)

	cfg := bulkscan.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := bulkscan.LoadYAML(path)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", path, err)
		}
		cfg = loaded
	}
	applyFlagOverrides(c, &cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	it, err := file.Open(imagePath, cfg.PageSize)
	if err != nil {
		return fmt.Errorf("opening image %s: %w", imagePath, err)
	}
	defer it.Close()

	out, closeOut, err := openReportWriter(c.String("report"))
	if err != nil {
		return err
	}
	defer closeOut()

	logger := logging.Default()

	sink := report.NewXML(out)
	sink.Push("bulkscan", map[string]string{"image": imagePath})
	sink.Emit("source/image_filename", imagePath, nil, true)
	sink.Emit("source/image_size", fmt.Sprintf("%d", it.MaxBlocks()*uint64(cfg.PageSize)), nil, false)

	set := buildScannerSet()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForShutdown(ctx, cancel, logger)

	driver := bulkscan.NewDriver(cfg, bulkscan.NewMetrics(), logger)

	stats, runErr := driver.Run(ctx, it, set, sink)

	sink.Pop() // no-op: the report Flush at the end of Run already closed "bulkscan"
	if err := sink.Flush(); err != nil {
		logger.Error("report flush failed", "err", err)
	}

	logger.Info("run complete",
		"run_id", stats.RunID,
		"pages_submitted", stats.PagesSubmitted,
		"bytes_submitted", stats.BytesSubmitted,
		"drain_timed_out", stats.DrainTimedOut,
	)

	return runErr
}

// applyFlagOverrides layers explicitly-set CLI flags on top of cfg,
// the way loadConfigWithOverrides in the example pack's CLI layers
// flags on top of a loaded file config.
func applyFlagOverrides(c *cli.Context, cfg *bulkscan.Config) {
	if c.IsSet("threads") && c.Int("threads") != 0 {
		cfg.NumThreads = c.Int("threads")
	}
	if c.IsSet("page-size") && c.Int("page-size") != 0 {
		cfg.PageSize = c.Int("page-size")
	}
	if c.IsSet("offset-start") {
		cfg.OffsetStart = c.Uint64("offset-start")
	}
	if c.IsSet("offset-end") {
		cfg.OffsetEnd = c.Uint64("offset-end")
	}
	if c.IsSet("page-start") {
		cfg.PageStart = c.Uint64("page-start")
	}
	if c.IsSet("sampling-fraction") {
		cfg.SamplingFraction = c.Float64("sampling-fraction")
	}
	if c.IsSet("sampling-passes") && c.Int("sampling-passes") != 0 {
		cfg.SamplingPasses = c.Int("sampling-passes")
	}
	if c.IsSet("quiet") {
		cfg.Quiet = c.Bool("quiet")
	}
	if c.IsSet("report-read-errors") {
		cfg.ReportReadErrors = c.Bool("report-read-errors")
	}
	if c.IsSet("hash") {
		cfg.EnableHash = c.Bool("hash")
	}
}

// buildScannerSet registers the demo scanners in a fixed order
// (spec.md §4.8: scanners run in registration order).
func buildScannerSet() *scan.Set {
	set := scan.NewSet()
	set.Register(gzipscan.New())
	set.Register(zeroscan.New(nil))
	return set
}

func openReportWriter(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating report file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

// waitForShutdown cancels ctx on SIGINT/SIGTERM, letting the driver's
// in-flight workers run to completion under Config.MaxWaitTime rather
// than being forcibly killed (spec.md §5).
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, logger *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return
	case sig := <-sigCh:
		logger.Warn("received shutdown signal, cancelling", "signal", sig.String())
		cancel()
	}
}
