package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/demo"
	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
	"github.com/gwlsn/transcast/internal/ffmpeg"
	"github.com/gwlsn/transcast/internal/housekeeping"
	"github.com/gwlsn/transcast/internal/jobs"
	"github.com/gwlsn/transcast/internal/keyboard"
	"github.com/gwlsn/transcast/internal/logger"
	"github.com/gwlsn/transcast/internal/metadata"
	"github.com/gwlsn/transcast/internal/uistate"
)

// rootOverrideName is the per-input-root override document, looked up in
// each input root's top directory.
const rootOverrideName = ".transcast.yaml"

const (
	exitOK          = 0
	exitConfigError = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	cli, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	cfgPath := "config/transcast.yaml"
	if cli.ConfigPath != nil {
		cfgPath = *cli.ConfigPath
	} else if envPath := os.Getenv("TRANSCAST_CONFIG"); envPath != "" {
		cfgPath = envPath
	}

	global, err := config.LoadGlobal(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigError
	}

	inputs := global.InputRoots
	if len(cli.InputRoots) > 0 {
		inputs = cli.InputRoots
	}
	var perRoot []*config.PerRootOverride
	for _, root := range inputs {
		ov, err := config.LoadRootOverride(root, filepath.Join(root, rootOverrideName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return exitConfigError
		}
		if ov != nil {
			perRoot = append(perRoot, ov)
		}
	}

	cfg, err := config.Merge(global, perRoot, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigError
	}
	if cfg.Demo && len(cfg.Roots) == 0 {
		base := filepath.Join(os.TempDir(), "transcast-demo")
		cfg.Roots = []config.RootMapping{{Input: base, Output: base + "_out", Error: base + "_err"}}
	}
	if len(cfg.Roots) == 0 {
		fmt.Fprintln(os.Stderr, "config: no input roots configured")
		return exitConfigError
	}

	logSink := io.Writer(os.Stderr)
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			return exitConfigError
		}
		defer f.Close()
		logSink = f
	}
	logger.Init(cfg.LogLevel, logSink)

	banner(cfg, cfgPath)

	bus := eventbus.New()
	defer bus.Close()

	state := uistate.NewState(cfg.MaxThreads)
	uistate.NewManager(state, bus)

	ctrl := jobs.NewController(cfg.MaxThreads, cfg.RuntimeMax)

	var pipeline *jobs.Pipeline
	var orch *jobs.Orchestrator
	if cfg.Demo {
		demoCfg := demo.DefaultConfig()
		if cfg.DemoConfig != "" {
			if demoCfg, err = demo.Load(cfg.DemoConfig); err != nil {
				fmt.Fprintf(os.Stderr, "demo config: %v\n", err)
				return exitConfigError
			}
		}
		suite := demo.NewSuite(demoCfg, cfg.Roots[0].Input)
		pipeline = jobs.NewPipeline(cfg, bus, suite, suite, suite)
		orch = jobs.NewOrchestrator(cfg, bus, pipeline, ctrl)
		orch.Discover = suite.Files
	} else {
		if err := checkTools(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitConfigError
		}
		ffmpeg.DetectEncoders(cfg.FFmpegPath)
		printEncoders()

		prober := ffmpeg.NewProber(cfg.FFprobePath)
		transcoder := ffmpeg.NewTranscoder(cfg.FFmpegPath)
		cache := metadata.NewCache()
		meta := metadata.New(exiftoolPath(), cfg.CameraOverrides, cache)

		pipeline = jobs.NewPipeline(cfg, bus, prober, transcoder, meta)
		orch = jobs.NewOrchestrator(cfg, bus, pipeline, ctrl)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Ctrl+C arrives through the keyboard controller when a terminal is
	// attached; the signal path covers non-interactive runs and SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		bus.Publish(events.Event{Kind: events.KindImmediateInterrupt})
	}()

	kb := keyboard.New(bus)
	if err := kb.Start(ctx); err != nil {
		logger.Warn("keyboard controller unavailable", "error", err)
	}
	defer kb.Stop()

	hk := housekeeping.New(cfg, bus)
	if _, err := hk.PreRun(); err != nil {
		logger.Error("pre-run housekeeping failed", "error", err)
		return exitConfigError
	}

	renderDone := make(chan struct{})
	go renderLoop(ctx, state, renderDone)

	runErr := orch.Run(ctx)
	stop()
	<-renderDone

	if err := hk.PostRun(kb.Interactive()); err != nil {
		logger.Warn("post-run housekeeping failed", "error", err)
	}

	snap := state.Snapshot()
	summary(snap)
	if cfg.Bell {
		fmt.Print("\a")
	}
	if cfg.Wait && kb.Interactive() {
		fmt.Println("press any key to exit")
		buf := make([]byte, 1)
		os.Stdin.Read(buf)
	}

	switch {
	case runErr != nil:
		fmt.Fprintf(os.Stderr, "run failed: %v\n", runErr)
		return exitConfigError
	case orch.Interrupted():
		return exitInterrupted
	default:
		return exitOK
	}
}

// parseFlags builds the CLI layer of the configuration merge. Only flags
// the user actually set carry through, so defaults and YAML keep their
// precedence.
func parseFlags() (config.CLIFlags, error) {
	var (
		configPath  = flag.String("config", "", "path to global YAML config")
		threads     = flag.Int("threads", 0, "starting worker thread cap")
		quality     = flag.Int("quality", 0, "baseline quality index (cq mode, 0-63)")
		qualityMode = flag.String("quality-mode", "", "quality mode: cq or rate")
		bps         = flag.String("bps", "", "rate-mode target (N/Nk/NM/NMbps or relative factor)")
		minrate     = flag.String("minrate", "", "rate-mode minimum")
		maxrate     = flag.String("maxrate", "", "rate-mode maximum")
		gpu         = flag.Bool("gpu", false, "use the GPU encode path")
		cpu         = flag.Bool("cpu", false, "use the CPU encode path")
		queueSort   = flag.String("queue-sort", "", "queue order: name|dir|size-asc|size|size-desc|ext|rand")
		queueSeed   = flag.Int64("queue-seed", 0, "seed for rand queue order")
		skipAV1     = flag.Bool("skip-av1", false, "skip sources already in the target codec")
		camera      = flag.String("camera", "", "comma-separated camera include patterns")
		minSize     = flag.Int64("min-size", 0, "minimum input size in bytes")
		minRatio    = flag.Float64("min-ratio", 0, "minimum compression ratio in [0,1]")
		rotate180   = flag.Bool("rotate-180", false, "force 180 degree rotation for all jobs")
		cleanErrors = flag.Bool("clean-errors", false, "remove error markers before the run")
		logPath     = flag.String("log-path", "", "log file destination")
		debug       = flag.Bool("debug", false, "enable debug logging")
		noDebug     = flag.Bool("no-debug", false, "disable debug logging")
		demoFlag    = flag.Bool("demo", false, "synthetic mode, no real transcodes")
		demoConfig  = flag.String("demo-config", "", "synthetic workload document")
		verifyFail  = flag.String("verify-fail-action", "", "verify failure action: false|log|pause|exit")
		wait        = flag.Bool("wait", false, "wait for a keypress before exiting")
		noWait      = flag.Bool("no-wait", false, "exit without waiting")
		bell        = flag.Bool("bell", false, "ring the terminal bell when done")
		noBell      = flag.Bool("no-bell", false, "no terminal bell")
	)
	// Short aliases.
	flag.StringVar(configPath, "c", "", "alias for -config")
	flag.IntVar(threads, "t", 0, "alias for -threads")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	chosen := func(names ...string) bool {
		for _, n := range names {
			if set[n] {
				return true
			}
		}
		return false
	}

	cli := config.CLIFlags{}
	if args := flag.Args(); len(args) > 0 {
		cli.InputRoots = splitNonEmpty(args[0])
	}
	if chosen("config", "c") {
		cli.ConfigPath = configPath
	}
	if chosen("threads", "t") {
		cli.Threads = threads
	}
	if chosen("quality") {
		cli.Quality = quality
	}
	if chosen("quality-mode") {
		cli.QualityMode = qualityMode
	}
	if chosen("bps") {
		cli.BPS = bps
	}
	if chosen("minrate") {
		cli.MinRate = minrate
	}
	if chosen("maxrate") {
		cli.MaxRate = maxrate
	}
	if chosen("gpu") {
		cli.GPU = gpu
	}
	if chosen("cpu") {
		cli.CPU = cpu
	}
	if *gpu && *cpu {
		return cli, fmt.Errorf("flags -gpu and -cpu are mutually exclusive")
	}
	if chosen("queue-sort") {
		cli.QueueSort = queueSort
	}
	if chosen("queue-seed") {
		cli.QueueSeed = queueSeed
	}
	if chosen("skip-av1") {
		cli.SkipAV1 = skipAV1
	}
	if chosen("camera") {
		cli.Camera = splitNonEmpty(*camera)
	}
	if chosen("min-size") {
		cli.MinSize = minSize
	}
	if chosen("min-ratio") {
		cli.MinRatio = minRatio
	}
	if chosen("rotate-180") {
		cli.Rotate180 = rotate180
	}
	if chosen("clean-errors") {
		cli.CleanErrors = cleanErrors
	}
	if chosen("log-path") {
		cli.LogPath = logPath
	}
	if chosen("debug") {
		cli.Debug = debug
	}
	if chosen("no-debug") {
		v := !*noDebug
		cli.Debug = &v
	}
	if chosen("demo") {
		cli.Demo = demoFlag
	}
	if chosen("demo-config") {
		cli.DemoConfig = demoConfig
	}
	if chosen("verify-fail-action") {
		cli.VerifyFailAction = verifyFail
	}
	if chosen("wait") {
		cli.Wait = wait
	}
	if chosen("no-wait") {
		v := !*noWait
		cli.Wait = &v
	}
	if chosen("bell") {
		cli.Bell = bell
	}
	if chosen("no-bell") {
		v := !*noBell
		cli.Bell = &v
	}
	return cli, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func banner(cfg *config.EffectiveConfig, cfgPath string) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                      📼 TRANSCAST                         ║")
	fmt.Println("║        Batch video transcoding orchestration              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Config:       %s\n", cfgPath)
	for _, m := range cfg.Roots {
		fmt.Printf("  Input root:   %s\n", m.Input)
		fmt.Printf("    output:     %s\n", m.Output)
		fmt.Printf("    errors:     %s\n", m.Error)
	}
	fmt.Printf("  Mode:         %s (%s)\n", cfg.Mode, cfg.TargetCodec)
	fmt.Printf("  Quality:      %s\n", qualitySummary(cfg))
	fmt.Printf("  Threads:      %d (max %d)\n", cfg.MaxThreads, cfg.RuntimeMax)
	fmt.Printf("  Queue sort:   %s\n", cfg.QueueSort)
	fmt.Printf("  Min size:     %s\n", humanize.Bytes(uint64(cfg.MinSizeBytes)))
	fmt.Printf("  Min ratio:    %.2f\n", cfg.MinCompressionRatio)
	if cfg.Demo {
		fmt.Println("  Demo:         synthetic mode, no real transcodes")
	}
	fmt.Println()
}

func qualitySummary(cfg *config.EffectiveConfig) string {
	if cfg.QualityMode == "rate" {
		return fmt.Sprintf("rate mode (bps %.0f)", cfg.RateBPS)
	}
	return fmt.Sprintf("cq %d", cfg.Quality)
}

func printEncoders() {
	best := ffmpeg.GetBestEncoder()
	fmt.Println("  Encoders:")
	for _, enc := range ffmpeg.ListAvailableEncoders() {
		if enc.Available {
			marker := "  "
			if enc.Accel == best.Accel {
				marker = "* "
			}
			fmt.Printf("    %s%s (%s)\n", marker, enc.Name, enc.Encoder)
		}
	}
	fmt.Println()
}

// checkTools verifies ffmpeg/ffprobe respond before any work is queued.
func checkTools(cfg *config.EffectiveConfig) error {
	for _, tool := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := exec.CommandContext(ctx, tool, "-version").Run()
		cancel()
		if err != nil {
			return fmt.Errorf("%s not usable: %w", tool, err)
		}
	}
	return nil
}

// exiftoolPath resolves the metadata tool, empty when unavailable (the
// adapter then falls back to the in-process walker).
func exiftoolPath() string {
	if p := os.Getenv("TRANSCAST_EXIFTOOL"); p != "" {
		return p
	}
	if _, err := exec.LookPath("exiftool"); err == nil {
		return "exiftool"
	}
	return ""
}

// renderLoop prints a one-line status at a steady cadence. The full-screen
// dashboard renderer is an external collaborator; this is the minimal
// in-tree view of the same snapshots.
func renderLoop(ctx context.Context, state *uistate.State, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := state.Snapshot()
			line := fmt.Sprintf("\r  active %d | pending %d | done %d | kept %d | skipped %d | failed %d | hw-cap %d | threads %d",
				len(snap.Active), snap.Pending,
				snap.Counters.Completed, snap.Counters.KeptOriginal, snap.Counters.Skipped,
				snap.Counters.Failed, snap.Counters.HwCap, snap.Threads)
			if snap.LastAction != "" {
				line += " | " + snap.LastAction
			}
			fmt.Print(line)
		}
	}
}

func summary(snap uistate.Snapshot) {
	fmt.Println()
	fmt.Printf("\n  Finished in %s: %d completed, %d kept original, %d skipped, %d failed, %d hw-cap\n",
		snap.Elapsed.Truncate(time.Second),
		snap.Counters.Completed, snap.Counters.KeptOriginal, snap.Counters.Skipped,
		snap.Counters.Failed, snap.Counters.HwCap)
}
