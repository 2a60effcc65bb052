package dicom

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suyashkumar/dicom"
)

// ErrMalformed is reported when the parser gives up on a blob it cannot decode.
var ErrMalformed = errors.New("malformed data set")

// Extractor classifies blobs and extracts their Metadata. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the clock used for default study dates and times.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// WithLogger sets the logger used to report parse problems.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor returns an Extractor using the wall clock and slog.Default.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify sniffs data and, when it is DICOM, extracts its metadata.
func (e *Extractor) Classify(data []byte) Classification {
	if !IsDICOM(data) {
		return Classification{Kind: NotDICOM}
	}
	return Classification{Kind: DICOM, Metadata: e.Extract(data)}
}

// Extract parses data and returns its metadata. It never fails: attributes
// that cannot be read are replaced by their defaults, and a blob whose header
// cannot be parsed yields a record made entirely of defaults.
func (e *Extractor) Extract(data []byte) Metadata {
	ds, err := parseTolerant(data, dicom.SkipPixelData())
	if err != nil {
		e.logger.Debug("dicom parse failed, using defaults", "error", err)
	}
	return metadataFromDataset(ds, e.now())
}

// ExtractMetadata is Extract with a default Extractor.
func ExtractMetadata(data []byte) Metadata {
	return NewExtractor().Extract(data)
}

// parseTolerant parses data element by element. Elements read before the
// first unreadable one are kept and returned with the error that stopped the
// parse; the error is nil when the data set was read to its end. Panics raised
// by the parser on malformed input are reported as errors the same way.
func parseTolerant(data []byte, opts ...dicom.ParseOption) (ds dicom.Dataset, err error) {
	var (
		p        *dicom.Parser
		elements []*dicom.Element
	)
	defer func() {
		if r := recover(); r != nil {
			ds = partialDataset(p, elements)
			err = fmt.Errorf("element %d: %w: %v", len(elements), ErrMalformed, r)
		}
	}()

	p, err = dicom.NewParser(bytes.NewReader(data), int64(len(data)), nil, opts...)
	if err != nil {
		return dicom.Dataset{}, fmt.Errorf("read header: %w", err)
	}

	for {
		elem, err := p.Next()
		if err != nil {
			ds := partialDataset(p, elements)
			if errors.Is(err, dicom.ErrorEndOfDICOM) {
				return ds, nil
			}
			return ds, fmt.Errorf("element %d: %w", len(elements), err)
		}
		elements = append(elements, elem)
	}
}

// partialDataset joins the file meta elements of p, if any, with elements.
func partialDataset(p *dicom.Parser, elements []*dicom.Element) dicom.Dataset {
	if p == nil {
		return dicom.Dataset{Elements: elements}
	}
	meta := p.GetMetadata()
	out := make([]*dicom.Element, 0, len(meta.Elements)+len(elements))
	out = append(out, meta.Elements...)
	return dicom.Dataset{Elements: append(out, elements...)}
}
