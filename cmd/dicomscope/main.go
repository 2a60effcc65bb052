package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mrsinham/dicomscope/cmd/dicomscope/browser"
	"github.com/mrsinham/dicomscope/internal/config"
	"github.com/mrsinham/dicomscope/internal/dicom"
	"github.com/mrsinham/dicomscope/internal/hierarchy"
	"github.com/mrsinham/dicomscope/internal/imagestore"
	"github.com/mrsinham/dicomscope/internal/scan"
	"github.com/mrsinham/dicomscope/internal/server"
	"github.com/mrsinham/dicomscope/internal/util"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "scan":
		err = runScan(args, os.Stdout)
	case "inspect":
		err = runInspect(args, os.Stdout)
	case "thumbnail":
		err = runThumbnail(args, os.Stdout)
	case "browse":
		err = runBrowse(args)
	case "serve":
		err = runServe(args)
	case "help":
		printHelp(os.Stdout)
	default:
		err = runGlobal(os.Args[1:], os.Stdout)
	}

	if errors.Is(err, flag.ErrHelp) {
		printHelp(os.Stdout)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runGlobal handles the flags accepted without a subcommand.
func runGlobal(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dicomscope", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "Show version")
	help := fs.Bool("help", false, "Show help message")
	configFile := fs.String("config", "", "Load configuration from YAML file")
	saveConfig := fs.String("save-config", "", "Write the effective configuration to a YAML file")
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *showVersion:
		fmt.Fprintf(out, "dicomscope %s\n", version)
		return nil
	case *help:
		printHelp(out)
		return nil
	case *saveConfig != "":
		cfg, err := loadConfig(*configFile)
		if err != nil {
			return err
		}
		if err := config.Save(cfg, *saveConfig); err != nil {
			return err
		}
		fmt.Fprintf(out, "Configuration saved to %s\n", *saveConfig)
		return nil
	}

	if fs.NArg() > 0 {
		return fmt.Errorf("unknown command %q (run 'dicomscope --help')", fs.Arg(0))
	}
	return errors.New("no command given (run 'dicomscope --help')")
}

// loadConfig layers the YAML file and DICOMSCOPE_* variables over the defaults.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// finish validates cfg after flag overrides and builds its logger.
func finish(cfg config.Config) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.Log.NewLogger(os.Stderr)
}

type commonFlags struct {
	config      *string
	workers     *int
	maxFileSize *string
	logLevel    *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:      fs.String("config", "", "Load configuration from YAML file"),
		workers:     fs.Int("workers", -1, fmt.Sprintf("Number of parallel workers (default: %d = CPU cores)", runtime.NumCPU())),
		maxFileSize: fs.String("max-file-size", "", "Skip files larger than this size (e.g., '512MB')"),
		logLevel:    fs.String("log-level", "", "Log level: debug, info, warn, error"),
	}
}

func (c commonFlags) apply(cfg *config.Config) {
	if *c.workers >= 0 {
		cfg.Scan.Workers = *c.workers
	}
	if *c.maxFileSize != "" {
		cfg.Scan.MaxFileSize = *c.maxFileSize
	}
	if *c.logLevel != "" {
		cfg.Log.Level = *c.logLevel
	}
}

func (c commonFlags) load(dirArg string) (config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(*c.config)
	if err != nil {
		return config.Config{}, nil, err
	}
	c.apply(&cfg)
	if dirArg != "" {
		cfg.Scan.Root = dirArg
	}
	logger, err := finish(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func scanOptions(cfg config.Config, logger *slog.Logger) []scan.Option {
	maxSize, _ := cfg.MaxFileSizeBytes()
	return []scan.Option{
		scan.WithLogger(logger),
		scan.WithWorkers(cfg.Scan.Workers),
		scan.WithCountFirst(cfg.Scan.CountFirst),
		scan.WithMaxFileSize(maxSize),
	}
}

func newStore(cfg config.Config) (*imagestore.Store, error) {
	return imagestore.New(
		imagestore.FSLoader(os.DirFS(cfg.Scan.Root)),
		cfg.Images.CacheEntries,
		imagestore.WithThumbnailLabel(cfg.Images.ThumbnailLabel),
	)
}

func runScan(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	common := addCommonFlags(fs)
	asJSON := fs.Bool("json", false, "Print the hierarchy as JSON")
	stacks := fs.Bool("stacks", false, "List each series as its image stack ordered by instance number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := common.load(fs.Arg(0))
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	builder := hierarchy.NewBuilder()
	scanner := scan.NewScanner(builder, append(scanOptions(cfg, logger), scan.WithRegistrar(store))...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := scanner.Scan(ctx, os.DirFS(cfg.Scan.Root), ".")
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.Scan.Root, err)
	}

	builder.View(func(h *hierarchy.Hierarchy) {
		if *asJSON {
			err = printJSON(out, h, summary)
			return
		}
		printTree(out, h, *stacks)
	})
	if err != nil {
		return err
	}
	if !*asJSON {
		printSummary(out, summary, builder.Stats())
	}
	return nil
}

func runInspect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	tagName := fs.String("tag", "", "Print only this tag (e.g., 'PatientName')")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: dicomscope inspect [--tag NAME] FILE")
	}
	path := fs.Arg(0)

	var info util.TagInfo
	if *tagName != "" {
		var err error
		if info, err = util.GetTagByName(*tagName); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := dicom.NewExtractor().Classify(data)
	fmt.Fprintf(out, "%s: %s\n", path, c.Kind)
	if c.Kind != dicom.DICOM {
		return dicom.ErrNotDICOM
	}

	ins, err := dicom.Inspect(data)
	if err != nil {
		return err
	}

	if *tagName != "" {
		e, ok := ins.Find(info.Tag)
		if !ok {
			return fmt.Errorf("tag %s %s not present in %s", info.Name, info.Tag, path)
		}
		fmt.Fprintf(out, "%s %s %s: %s\n", e.ID, e.VR, e.Name, e.Value)
		return nil
	}

	md := c.Metadata
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Metadata:")
	printFields(out, [][2]string{
		{"Patient ID", md.PatientID},
		{"Patient name", md.PatientName},
		{"Study date", md.StudyDate},
		{"Study time", md.StudyTime},
		{"Modality", fmt.Sprintf("%s (%s)", md.Modality, dicom.Modality(md.Modality).Description())},
		{"Series description", md.SeriesDescription},
		{"Instance number", fmt.Sprint(md.InstanceNumber)},
		{"Study instance UID", md.StudyInstanceUID},
		{"Series instance UID", md.SeriesInstanceUID},
	})

	for _, g := range ins.Groups {
		fmt.Fprintf(out, "\n%s (%s)\n", g.Name, g.ID)
		for _, e := range g.Elements {
			fmt.Fprintf(out, "  %s %-2s %-40s %s\n", e.ID, e.VR, e.Name, e.Value)
		}
	}
	if ins.Incomplete {
		fmt.Fprintln(out, "\nWarning: the data set could not be read to the end")
	}
	return nil
}

func runThumbnail(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("thumbnail", flag.ContinueOnError)
	configFile := fs.String("config", "", "Load configuration from YAML file")
	size := fs.Int("size", 0, "Thumbnail size in pixels (default: images.thumbnail_size)")
	label := fs.Bool("label", false, "Draw the modality and instance number")
	outPath := fs.String("out", "", "Output PNG file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *outPath == "" {
		return errors.New("usage: dicomscope thumbnail [--size N] [--label] --out PNG FILE")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	if *size != 0 {
		cfg.Images.ThumbnailSize = *size
	}
	if *label {
		cfg.Images.ThumbnailLabel = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	opts := dicom.ThumbnailOptions{Size: cfg.Images.ThumbnailSize}
	if cfg.Images.ThumbnailLabel {
		md := dicom.ExtractMetadata(data)
		opts.Label = fmt.Sprintf("%s #%d", md.Modality, md.InstanceNumber)
	}
	img, err := dicom.RenderThumbnail(data, opts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, buf.Bytes(), 0644); err != nil {
		return err
	}
	b := img.Bounds()
	fmt.Fprintf(out, "✓ Thumbnail %dx%d written to %s\n", b.Dx(), b.Dy(), *outPath)
	return nil
}

func runBrowse(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := common.load("")
	if err != nil {
		return err
	}
	dir := fs.Arg(0)

	// Log to a discarded writer: the browser owns the terminal.
	logger, err := cfg.Log.NewLogger(io.Discard)
	if err != nil {
		return err
	}

	builder := hierarchy.NewBuilder()
	opts := browser.Options{
		Dir:         dir,
		Builder:     builder,
		ScanOptions: scanOptions(cfg, logger),
		Logger:      logger,
	}
	if dir != "" {
		cfg.Scan.Root = dir
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		opts.Registrar = store
	}
	return browser.Run(opts)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	listen := fs.String("listen", "", "Listen address (default: server.listen)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := common.load(fs.Arg(0))
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	builder := hierarchy.NewBuilder()
	scanner := scan.NewScanner(builder, append(scanOptions(cfg, logger), scan.WithRegistrar(store))...)
	fsys := os.DirFS(cfg.Scan.Root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := scanner.Scan(ctx, fsys, "."); err != nil {
		return fmt.Errorf("scan %s: %w", cfg.Scan.Root, err)
	}

	h := server.NewHandler(server.Options{
		Builder:          builder,
		Images:           store,
		Scanner:          scanner,
		FS:               fsys,
		Root:             ".",
		ThumbnailSize:    cfg.Images.ThumbnailSize,
		MaxThumbnailSize: config.MaxThumbnailSize,
		Logger:           logger,
	})
	return server.Run(ctx, cfg.Server.Listen, server.NewRouter(h), logger)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  dicomscope <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands: scan, inspect, thumbnail, browse, serve (run 'dicomscope --help' for details)")
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "dicomscope")
	fmt.Fprintln(w, "==========")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Find DICOM files in a directory and organize them by subject, visit, series and sequence.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  dicomscope <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  scan [options] DIR        Scan DIR and print the hierarchy")
	fmt.Fprintln(w, "    --json                  Print the hierarchy as JSON")
	fmt.Fprintln(w, "    --stacks                List series as image stacks ordered by instance number")
	fmt.Fprintln(w, "  inspect [--tag NAME] FILE Print the classification, metadata and elements of FILE")
	fmt.Fprintln(w, "  thumbnail [options] FILE  Write a PNG thumbnail of FILE")
	fmt.Fprintln(w, "    --out <PNG>             Output file (required)")
	fmt.Fprintln(w, "    --size <N>              Size in pixels (default: 128)")
	fmt.Fprintln(w, "    --label                 Draw the modality and instance number")
	fmt.Fprintln(w, "  browse [options] [DIR]    Browse the hierarchy interactively")
	fmt.Fprintln(w, "  serve [options] DIR       Serve the hierarchy over HTTP")
	fmt.Fprintln(w, "    --listen <ADDR>         Listen address (default: :8080)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scan options (scan, browse, serve):")
	fmt.Fprintln(w, "  --config <FILE>           Load configuration from YAML file")
	fmt.Fprintf(w, "  --workers <N>             Number of parallel workers (default: %d = CPU cores)\n", runtime.NumCPU())
	fmt.Fprintln(w, "  --max-file-size <SIZE>    Skip larger files (e.g., '512MB')")
	fmt.Fprintln(w, "  --log-level <LEVEL>       debug, info, warn or error")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global options:")
	fmt.Fprintln(w, "  --save-config <FILE>      Write the effective configuration to FILE")
	fmt.Fprintln(w, "  --version                 Show version")
	fmt.Fprintln(w, "  --help                    Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  DICOMSCOPE_ROOT, DICOMSCOPE_WORKERS, DICOMSCOPE_MAX_FILE_SIZE, DICOMSCOPE_THUMBNAIL_SIZE,")
	fmt.Fprintln(w, "  DICOMSCOPE_LISTEN, DICOMSCOPE_LOG_LEVEL and DICOMSCOPE_LOG_FORMAT override the config file.")
	fmt.Fprintln(w, "  A .env file in the working directory is loaded first.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  # Print the tree of a CD-ROM export")
	fmt.Fprintln(w, "  dicomscope scan /media/cdrom")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Dump the patient name of a single file")
	fmt.Fprintln(w, "  dicomscope inspect --tag PatientName IM000001")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Serve a study folder to a web viewer")
	fmt.Fprintln(w, "  dicomscope serve --listen 127.0.0.1:9000 ./studies")
}
