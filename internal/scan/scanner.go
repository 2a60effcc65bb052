package scan

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrsinham/dicomscope/internal/dicom"
	"github.com/mrsinham/dicomscope/internal/hierarchy"
)

// ImageRegistrar hands out opaque image references for DICOM blobs.
type ImageRegistrar interface {
	Register(path string, data []byte) (string, error)
}

// Progress is reported once per processed file, in discovery order.
type Progress struct {
	// Total is zero unless files were counted before the scan.
	Total      int
	Processed  int
	Percentage int
	Path       string
}

// Summary describes a finished scan. Skipped counts the files above
// MaxFileSize, which are not part of Files.
type Summary struct {
	Files                int           `json:"files"`
	DICOM                int           `json:"dicom"`
	NotDICOM             int           `json:"notDicom"`
	Unreadable           int           `json:"unreadable"`
	RegistrationFailures int           `json:"registrationFailures"`
	Skipped              int           `json:"skipped"`
	MaxFileSize          int64         `json:"maxFileSize,omitempty"`
	Duration             time.Duration `json:"duration"`
}

// Scanner feeds the files below a root into a hierarchy.Builder.
type Scanner struct {
	builder     *hierarchy.Builder
	extractor   *dicom.Extractor
	registrar   ImageRegistrar
	logger      *slog.Logger
	workers     int
	countFirst  bool
	maxFileSize int64
	progress    func(Progress)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithWorkers sets the number of files classified in parallel. Zero or less
// means one per CPU.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		s.workers = n
	}
}

// WithRegistrar sets the image registrar. Without one every sequence gets an
// empty image ID.
func WithRegistrar(r ImageRegistrar) Option {
	return func(s *Scanner) {
		s.registrar = r
	}
}

// WithProgress sets a callback invoked after each file.
func WithProgress(fn func(Progress)) Option {
	return func(s *Scanner) {
		s.progress = fn
	}
}

// WithCountFirst walks the tree once before scanning so Progress carries a total.
func WithCountFirst(enabled bool) Option {
	return func(s *Scanner) {
		s.countFirst = enabled
	}
}

// WithMaxFileSize skips files larger than n bytes when n is positive.
func WithMaxFileSize(n int64) Option {
	return func(s *Scanner) {
		s.maxFileSize = n
	}
}

// WithExtractor sets the metadata extractor.
func WithExtractor(e *dicom.Extractor) Option {
	return func(s *Scanner) {
		s.extractor = e
	}
}

// NewScanner returns a Scanner writing into builder.
func NewScanner(builder *hierarchy.Builder, opts ...Option) *Scanner {
	s := &Scanner{
		builder: builder,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = dicom.NewExtractor(dicom.WithLogger(s.logger))
	}
	if s.workers <= 0 {
		s.workers = runtime.NumCPU()
	}
	return s
}

type fileKind int

const (
	kindUnreadable fileKind = iota
	kindNotDICOM
	kindDICOM
)

type job struct {
	index int
	file  RawFile
}

type outcome struct {
	index    int
	path     string
	kind     fileKind
	data     []byte
	metadata dicom.Metadata
}

// Scan resets the builder and fills it from the files below root. Per-file
// problems are logged and counted, never returned. Metadata is applied to the
// builder strictly in discovery order. If root cannot be traversed the builder
// is left empty and an *EnumerationError is returned.
func (s *Scanner) Scan(ctx context.Context, fsys fs.FS, root string) (Summary, error) {
	start := time.Now()
	s.reset()

	enumOpts := EnumerateOptions{MaxFileSize: s.maxFileSize, Logger: s.logger}

	total := 0
	if s.countFirst {
		n, err := Count(ctx, fsys, root, enumOpts)
		if err != nil {
			s.reset()
			return Summary{}, err
		}
		total = n
	}

	var skipped atomic.Int64
	walkOpts := enumOpts
	walkOpts.OnSkip = func(RawFile) { skipped.Add(1) }

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, s.workers)
	results := make(chan outcome, s.workers)

	g.Go(func() error {
		defer close(jobs)
		next := 0
		return Enumerate(gctx, fsys, root, walkOpts, func(f RawFile) error {
			select {
			case jobs <- job{index: next, file: f}:
				next++
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var workers sync.WaitGroup
	for range s.workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range jobs {
				o := s.classify(j)
				select {
				case results <- o:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// Reorder buffer: outcomes arrive in completion order and are applied in
	// discovery order.
	summary := Summary{MaxFileSize: s.maxFileSize}
	pending := make(map[int]outcome)
	next := 0
	for o := range results {
		pending[o.index] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			s.apply(ready, &summary)
			s.report(total, summary.Files, ready.path)
		}
	}

	err := g.Wait()
	summary.Skipped = int(skipped.Load())
	if err != nil {
		if errors.Is(err, ErrEnumeration) {
			s.reset()
		}
		return summary, err
	}

	summary.Duration = time.Since(start)
	s.logger.Info("scan finished",
		"root", root,
		"files", summary.Files,
		"dicom", summary.DICOM,
		"skipped", summary.Skipped,
		"duration", summary.Duration)
	return summary, nil
}

func (s *Scanner) reset() {
	s.builder.Reset()
	if r, ok := s.registrar.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// classify runs in a worker.
func (s *Scanner) classify(j job) outcome {
	o := outcome{index: j.index, path: j.file.Path}

	head, err := j.file.Head(dicom.SniffLength)
	if err != nil {
		s.logger.Warn("cannot read file", "path", j.file.Path, "error", err)
		return o
	}
	if !dicom.IsDICOM(head) {
		o.kind = kindNotDICOM
		return o
	}

	data, err := j.file.ReadAll()
	if err != nil {
		s.logger.Warn("cannot read file", "path", j.file.Path, "error", err)
		return o
	}
	o.kind = kindDICOM
	o.data = data
	o.metadata = s.extractor.Extract(data)
	return o
}

// apply runs in the collector, one outcome at a time.
func (s *Scanner) apply(o outcome, summary *Summary) {
	summary.Files++
	switch o.kind {
	case kindUnreadable:
		summary.Unreadable++
		return
	case kindNotDICOM:
		summary.NotDICOM++
		s.logger.Debug("not a DICOM file", "path", o.path)
		return
	}

	summary.DICOM++
	imageID := ""
	if s.registrar != nil {
		id, err := s.registrar.Register(o.path, o.data)
		if err != nil {
			summary.RegistrationFailures++
			s.logger.Warn("image registration failed", "path", o.path, "error", err)
		} else {
			imageID = id
		}
	}
	s.builder.AddMetadata(o.metadata, imageID)
}

func (s *Scanner) report(total, processed int, path string) {
	if s.progress == nil {
		return
	}
	s.progress(Progress{
		Total:      total,
		Processed:  processed,
		Percentage: percentage(processed, total),
		Path:       path,
	})
}

func percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}
