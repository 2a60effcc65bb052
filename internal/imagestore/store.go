// Package imagestore registers DICOM blobs under opaque dicomfile:// image IDs
// and serves their bytes, element dumps and thumbnails.
package imagestore

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mrsinham/dicomscope/internal/dicom"
)

// Scheme prefixes every image ID.
const Scheme = "dicomfile"

// ErrUnknownImage is returned for IDs that were never registered or that
// belong to a previous scan.
var ErrUnknownImage = errors.New("unknown image")

// Loader reads the blob registered under path when it is no longer cached.
type Loader func(path string) ([]byte, error)

// FSLoader loads blobs from fsys.
func FSLoader(fsys fs.FS) Loader {
	return func(path string) ([]byte, error) {
		return fs.ReadFile(fsys, path)
	}
}

// ref names one registration. gen changes on every Reset, so cache entries
// of a previous scan never answer for the current one.
type ref struct {
	gen   uint64
	index int
	path  string
}

type blobKey struct {
	gen   uint64
	index int
}

type thumbKey struct {
	blobKey
	size int
}

// Store hands out image IDs in registration order, starting at dicomfile://0.
type Store struct {
	loader Loader
	label  bool

	mu     sync.Mutex
	gen    uint64
	paths  []string
	blobs  *lru.Cache[blobKey, []byte]
	thumbs *lru.Cache[thumbKey, []byte]
}

// Option configures a Store.
type Option func(*Store)

// WithThumbnailLabel draws the modality and instance number on thumbnails.
func WithThumbnailLabel(enabled bool) Option {
	return func(s *Store) {
		s.label = enabled
	}
}

// New returns a Store keeping up to cacheEntries blobs and as many thumbnails
// in memory.
func New(loader Loader, cacheEntries int, opts ...Option) (*Store, error) {
	blobs, err := lru.New[blobKey, []byte](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("blob cache: %w", err)
	}
	thumbs, err := lru.New[thumbKey, []byte](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("thumbnail cache: %w", err)
	}
	s := &Store{loader: loader, blobs: blobs, thumbs: thumbs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FormatID returns the image ID for registration index n.
func FormatID(n int) string {
	return Scheme + "://" + strconv.Itoa(n)
}

// ParseID returns the registration index of an image ID. Both dicomfile://N
// and dicomfile:N are accepted.
func ParseID(id string) (int, error) {
	rest, ok := strings.CutPrefix(id, Scheme+":")
	if !ok {
		return 0, fmt.Errorf("image id %q: missing %s scheme", id, Scheme)
	}
	rest = strings.TrimPrefix(rest, "//")
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("image id %q: invalid index", id)
	}
	return n, nil
}

// Register records a DICOM blob found at path and returns its image ID.
func (s *Store) Register(path string, data []byte) (string, error) {
	if !dicom.IsDICOM(data) {
		return "", fmt.Errorf("register %s: %w", path, dicom.ErrNotDICOM)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.paths)
	s.paths = append(s.paths, path)
	s.blobs.Add(blobKey{gen: s.gen, index: n}, data)
	return FormatID(n), nil
}

// Reset forgets every registration.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.paths = nil
	s.blobs.Purge()
	s.thumbs.Purge()
}

// Len returns the number of registered images.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Path returns the path an image was registered from.
func (s *Store) Path(id string) (string, error) {
	r, err := s.resolve(id)
	return r.path, err
}

func (s *Store) resolve(id string) (ref, error) {
	n, err := ParseID(id)
	if err != nil {
		return ref{}, fmt.Errorf("%w: %v", ErrUnknownImage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.paths) {
		return ref{}, fmt.Errorf("%w: %s", ErrUnknownImage, id)
	}
	return ref{gen: s.gen, index: n, path: s.paths[n]}, nil
}

func (r ref) key() blobKey {
	return blobKey{gen: r.gen, index: r.index}
}

// addCurrent runs add unless a Reset happened since r was resolved.
func (s *Store) addCurrent(r ref, add func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.gen == s.gen {
		add()
	}
}

// Bytes returns the blob of an image, reloading it when it was evicted.
func (s *Store) Bytes(id string) ([]byte, error) {
	r, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	return s.load(r)
}

func (s *Store) load(r ref) ([]byte, error) {
	if data, ok := s.blobs.Get(r.key()); ok {
		return data, nil
	}

	if s.loader == nil {
		return nil, fmt.Errorf("%w: %s evicted and no loader configured", ErrUnknownImage, FormatID(r.index))
	}
	data, err := s.loader(r.path)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", r.path, err)
	}
	s.addCurrent(r, func() { s.blobs.Add(r.key(), data) })
	return data, nil
}

// Metadata returns the grouped element dump of an image.
func (s *Store) Metadata(id string) (dicom.Inspection, error) {
	data, err := s.Bytes(id)
	if err != nil {
		return dicom.Inspection{}, err
	}
	return dicom.Inspect(data)
}

// Thumbnail returns a PNG thumbnail of an image bounded by size pixels.
func (s *Store) Thumbnail(id string, size int) ([]byte, error) {
	r, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	key := thumbKey{blobKey: r.key(), size: size}
	if cached, ok := s.thumbs.Get(key); ok {
		return cached, nil
	}

	data, err := s.load(r)
	if err != nil {
		return nil, err
	}
	opts := dicom.ThumbnailOptions{Size: size}
	if s.label {
		md := dicom.ExtractMetadata(data)
		opts.Label = fmt.Sprintf("%s #%d", md.Modality, md.InstanceNumber)
	}
	img, err := dicom.RenderThumbnail(data, opts)
	if err != nil {
		return nil, fmt.Errorf("thumbnail %s: %w", id, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode thumbnail %s: %w", id, err)
	}
	s.addCurrent(r, func() { s.thumbs.Add(key, buf.Bytes()) })
	return buf.Bytes(), nil
}
