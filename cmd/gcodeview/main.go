// gcodeview interprets G-code files into toolpath records for a viewer.
//
// Usage:
//
//	gcodeview [options] FILE
//	gcodeview --serve [options]
//
// Examples:
//
//	# Summarize a file
//	gcodeview benchy.gcode
//
//	# Stream every record as JSON lines
//	gcodeview --json benchy.gcode > benchy.jsonl
//
//	# Serve the viewer API with a machine profile that reloads on change
//	gcodeview --serve --config ~/machine.cfg --gcode-dir ~/gcodes
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/gcode"
	"gcodeview/pkg/geom"
	"gcodeview/pkg/loader"
	"gcodeview/pkg/log"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/processor"
	"gcodeview/pkg/slicer"
	"gcodeview/pkg/viewer"
)

type options struct {
	configFile  string
	slicerName  string
	jsonOut     bool
	progress    bool
	serve       bool
	address     string
	gcodeDir    string
	metricsAddr string
	watch       time.Duration
	logLevel    string
	logFormat   string

	cnc         bool
	belt        bool
	gantryAngle float64
	fixRadius   bool
	arcSegment  float64
	arcPlane    string
}

func main() {
	var opts options
	fs := flag.NewFlagSet("gcodeview", flag.ExitOnError)
	fs.StringVarP(&opts.configFile, "config", "c", "", "Machine profile file")
	fs.StringVarP(&opts.slicerName, "slicer", "s", config.SlicerAuto, "Slicer that produced the file ("+kindList()+")")
	fs.BoolVar(&opts.jsonOut, "json", false, "Write records as JSON lines instead of a summary")
	fs.BoolVar(&opts.progress, "progress", false, "Report parse progress on stderr")
	fs.BoolVar(&opts.serve, "serve", false, "Serve the viewer API instead of parsing a file")
	fs.StringVar(&opts.address, "address", "", "Viewer listen address (default from profile, :7125)")
	fs.StringVar(&opts.gcodeDir, "gcode-dir", "", "Directory served by the file endpoints")
	fs.StringVar(&opts.metricsAddr, "metrics", "", "Standalone metrics listen address, e.g. :9100")
	fs.DurationVar(&opts.watch, "watch", 2*time.Second, "Profile reload poll interval when serving (0 disables)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")

	fs.BoolVar(&opts.cnc, "cnc", false, "Treat every G1 as cutting (CNC mode)")
	fs.BoolVar(&opts.belt, "belt", false, "Apply the belt printer gantry transform")
	fs.Float64Var(&opts.gantryAngle, "gantry-angle", 0, "Belt gantry angle in degrees")
	fs.BoolVar(&opts.fixRadius, "fix-radius", false, "Grow undersized R arc radii instead of failing")
	fs.Float64Var(&opts.arcSegment, "arc-segment", 0, "Arc segment length in mm")
	fs.StringVar(&opts.arcPlane, "arc-plane", "", "Initial arc plane: XY, XZ, YZ")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gcodeview [options] FILE\n       gcodeview --serve [options]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if !opts.serve && fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signalContext()
	defer stop()

	var err error
	if opts.serve {
		err = serve(ctx, fs, &opts)
	} else {
		err = parseFile(ctx, fs, &opts, fs.Arg(0))
	}
	if err != nil {
		log.Default().WithError(err).Error("gcodeview failed")
		os.Exit(1)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Default().Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func kindList() string {
	names := []string{config.SlicerAuto}
	for _, k := range slicer.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

// configureLogging applies the profile's [log] section, then the flags.
func configureLogging(fs *flag.FlagSet, opts *options, mc *config.MachineConfig) {
	level, format := mc.Log.Level, mc.Log.Format
	if fs.Changed("log-level") {
		level = opts.logLevel
	}
	if fs.Changed("log-format") {
		format = opts.logFormat
	}
	root := log.Default()
	root.SetLevel(log.ParseLevel(level))
	root.SetFormat(log.ParseFormat(format))
	log.ConfigureFromEnv(root)
}

// withOverrides copies base and applies the machine flags given on the
// command line.
func withOverrides(fs *flag.FlagSet, opts *options, base *config.MachineConfig) (*config.MachineConfig, error) {
	mc := *base
	mc.Tools = append([]config.ToolConfig(nil), base.Tools...)

	if fs.Changed("cnc") {
		mc.CNC = opts.cnc
	}
	if fs.Changed("belt") {
		mc.Belt = opts.belt
	}
	if fs.Changed("fix-radius") {
		mc.FixRadius = opts.fixRadius
	}
	if fs.Changed("gantry-angle") {
		if opts.gantryAngle <= 0 || opts.gantryAngle >= 90 {
			return nil, errors.Newf(errors.ErrConfigValidation, "--gantry-angle must be between 0 and 90, got %g", opts.gantryAngle)
		}
		mc.GantryAngle = opts.gantryAngle
	}
	if fs.Changed("arc-segment") {
		if opts.arcSegment <= 0 {
			return nil, errors.Newf(errors.ErrConfigValidation, "--arc-segment must be positive, got %g", opts.arcSegment)
		}
		mc.ArcSegmentLength = opts.arcSegment
	}
	if fs.Changed("arc-plane") {
		plane, ok := geom.ParsePlane(opts.arcPlane)
		if !ok {
			return nil, errors.Newf(errors.ErrConfigValidation, "--arc-plane must be XY, XZ or YZ, got %q", opts.arcPlane)
		}
		mc.ArcPlane = plane
	}
	if fs.Changed("slicer") {
		if opts.slicerName != config.SlicerAuto {
			if _, err := slicer.ParseKind(opts.slicerName); err != nil {
				return nil, errors.Wrap(err, errors.ErrConfigValidation, "--slicer")
			}
		}
		mc.Slicer = opts.slicerName
	}
	return &mc, nil
}

func loadProfile(opts *options) (*config.MachineConfig, error) {
	if opts.configFile == "" {
		return config.DefaultMachineConfig(), nil
	}
	return config.LoadMachineConfig(opts.configFile)
}

func parseFile(ctx context.Context, fs *flag.FlagSet, opts *options, path string) error {
	base, err := loadProfile(opts)
	if err != nil {
		return err
	}
	mc, err := withOverrides(fs, opts, base)
	if err != nil {
		return err
	}
	configureLogging(fs, opts, mc)

	f, err := loader.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	kind, ok := mc.SlicerKind()
	if !ok {
		head := f.Bytes()
		if len(head) > slicer.DetectWindow {
			head = head[:slicer.DetectWindow]
		}
		kind = slicer.Detect(string(head))
	}
	log.Default().WithFields(log.Fields{
		"file":   path,
		"size":   f.Size(),
		"mapped": f.Mapped(),
		"slicer": kind.String(),
	}).Debug("parsing")

	procOpts := []processor.Option{
		processor.WithSlicer(kind),
		processor.WithSetup(mc.Apply),
	}
	if opts.progress {
		procOpts = append(procOpts, processor.WithProgress(progressPrinter()))
	}

	out := bufio.NewWriterSize(os.Stdout, 1<<16)
	defer out.Flush()

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		procOpts = append(procOpts, processor.WithRecordSink(func(rec gcode.Record) error {
			return enc.Encode(gcode.Wrap(rec))
		}))
	} else {
		procOpts = append(procOpts, processor.WithRecordSink(func(gcode.Record) error { return nil }))
	}

	res, err := processor.New(procOpts...).ProcessBytes(ctx, f.Bytes())
	if err != nil {
		return err
	}
	if !opts.jsonOut {
		printSummary(out, path, &res.Summary)
	}
	return nil
}

// progressPrinter reports whole percentages on stderr.
func progressPrinter() func(done, total int) {
	last := -1
	return func(done, total int) {
		if total == 0 {
			return
		}
		pct := done * 100 / total
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(os.Stderr, "\r%3d%%", pct)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func printSummary(w *bufio.Writer, path string, s *processor.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "File:\t%s\n", path)
	fmt.Fprintf(tw, "Slicer:\t%s\n", s.Slicer)
	fmt.Fprintf(tw, "Lines:\t%d\n", s.Lines)
	fmt.Fprintf(tw, "Moves:\t%d (%d extruding)\n", s.Moves, s.Extrusions)
	fmt.Fprintf(tw, "Arcs:\t%d (%d segments)\n", s.Arcs, s.ArcSegments)
	fmt.Fprintf(tw, "Distance:\t%.1f mm\n", s.Distance)
	fmt.Fprintf(tw, "Feed rate:\t%g - %g mm/min\n", s.MinFeedRate, s.MaxFeedRate)
	fmt.Fprintf(tw, "Height:\t%.3f - %.3f mm (layer %.3f)\n", s.MinHeight, s.MaxHeight, s.LayerHeight)
	fmt.Fprintf(tw, "Tools:\t%d (%d changes)\n", s.Tools, s.ToolChanges)
	fmt.Fprintf(tw, "G-code bytes:\t%d - %d\n", s.FirstGCodeByte, s.LastGCodeByte)
	if len(s.UnknownFeatures) > 0 {
		fmt.Fprintf(tw, "Unknown features:\t%s\n", strings.Join(s.UnknownFeatures, ", "))
	}

	kinds := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(tw, "  %s:\t%d\n", k, s.Counts[k])
	}
	fmt.Fprintf(tw, "Parsed in:\t%s\n", s.Duration.Round(time.Millisecond))
}

func serve(ctx context.Context, fs *flag.FlagSet, opts *options) error {
	var (
		rm   *config.ReloadManager
		base = config.DefaultMachineConfig()
		err  error
	)
	if opts.configFile != "" {
		if rm, err = config.NewReloadManager(opts.configFile); err != nil {
			return err
		}
		base = rm.Current()
	}
	mc, err := withOverrides(fs, opts, base)
	if err != nil {
		return err
	}
	configureLogging(fs, opts, mc)
	logger := log.GetLogger("main")

	current := func() *config.MachineConfig { return mc }
	if rm != nil {
		rm.OnReload(func(next *config.MachineConfig, changed []string) {
			if _, err := withOverrides(fs, opts, next); err != nil {
				logger.WithError(err).Warn("reloaded profile rejected")
			}
		})
		current = func() *config.MachineConfig {
			next, err := withOverrides(fs, opts, rm.Current())
			if err != nil {
				return mc
			}
			return next
		}
		if opts.watch > 0 {
			go rm.Watch(ctx, opts.watch)
		}
	}

	pm := metrics.NewParseMetrics()
	vcfg := viewer.ConfigFromMachine(mc)
	vcfg.Profile = current
	vcfg.GCodeDir = opts.gcodeDir
	vcfg.Metrics = pm
	if opts.address != "" {
		vcfg.Address = opts.address
	}

	srv, err := viewer.New(vcfg)
	if err != nil {
		return err
	}

	var ms *metrics.Server
	if opts.metricsAddr != "" {
		mcfg := metrics.DefaultServerConfig()
		mcfg.Address = opts.metricsAddr
		mcfg.Username = mc.Viewer.MetricsUsername
		mcfg.Password = mc.Viewer.MetricsPassword
		ms = metrics.NewServer(pm, mcfg)
		go func() {
			if err := <-ms.StartAsync(); err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.WithFields(log.Fields{
		"address":   vcfg.Address,
		"gcode_dir": opts.gcodeDir,
		"profile":   opts.configFile,
		"metrics":   opts.metricsAddr,
	}).Info("gcodeview viewer ready")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ms != nil {
		_ = ms.Shutdown(shutdownCtx)
	}
	return srv.Stop(shutdownCtx)
}
