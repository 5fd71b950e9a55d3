// Package metadata implements the metadata adapter: EXIF/
// XMP field extraction through an external single-threaded tool, camera-
// pattern override resolution, the custom previously-encoded tag, and the
// all-or-nothing preserved-metadata copy onto a finished output.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/logger"
	"github.com/gwlsn/transcast/internal/media"
)

// CreatorTag is the custom tag value written onto every output; its
// presence on a source marks the file as previously encoded by a prior
// run.
const CreatorTag = "transcast"

// creatorToolArg is the exiftool assignment that writes CreatorTag.
const creatorToolArg = "-XMP-xmp:CreatorTool=" + CreatorTag

// FieldExtractor produces the raw string fields of a file's EXIF/XMP
// metadata. The production implementation spawns exiftool; the in-process
// exif walker (exiflib.go) serves when no external tool is configured.
type FieldExtractor interface {
	Fields(ctx context.Context, path string) (map[string]string, error)
}

// Adapter resolves camera overrides and the previously-encoded flag from a
// file's metadata fields, and copies preserved metadata onto outputs. All
// external-tool calls are serialized through one mutex (the tool is
// single-threaded per process); concurrent cache misses for
// the same path collapse onto one in-flight extract via singleflight.
type Adapter struct {
	exiftoolPath string
	extractor    FieldExtractor
	overrides    []config.CameraOverrideEntry

	cache *Cache
	group singleflight.Group

	mu sync.Mutex // serializes external tool invocations
}

// New builds an Adapter around exiftool at exiftoolPath. An empty path
// selects the in-process exif walker instead of spawning a tool.
func New(exiftoolPath string, overrides []config.CameraOverrideEntry, cache *Cache) *Adapter {
	a := &Adapter{
		exiftoolPath: exiftoolPath,
		overrides:    overrides,
		cache:        cache,
	}
	if exiftoolPath == "" {
		a.extractor = &ExifLibExtractor{}
	} else {
		a.extractor = a
	}
	return a
}

// Fetch returns the resolved Metadata for path, consulting the cache
// first. probed carries the stream-level fields already learned
// from the Probe Adapter; the returned value extends a copy of it with the
// EXIF/XMP-derived fields and is the instance that ends up cached.
func (a *Adapter) Fetch(ctx context.Context, path string, probed *media.Metadata) (*media.Metadata, error) {
	if cached := a.cache.Get(path); cached != nil {
		return cached, nil
	}
	v, err, _ := a.group.Do(path, func() (any, error) {
		meta, err := a.extract(ctx, path, probed)
		if err != nil {
			return nil, err
		}
		return a.cache.Insert(path, meta), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*media.Metadata), nil
}

// extract scans all available fields and applies the configured camera
// patterns in order: the first pattern occurring case-insensitively in any
// string field carries its override table through.
func (a *Adapter) extract(ctx context.Context, path string, probed *media.Metadata) (*media.Metadata, error) {
	fields, err := a.extractor.Fields(ctx, path)
	if err != nil {
		return nil, err
	}

	meta := &media.Metadata{}
	if probed != nil {
		cp := *probed
		meta = &cp
	}

	values := make([]string, 0, len(fields))
	for _, v := range fields {
		values = append(values, v)
	}

	if model, ok := fields["Model"]; ok {
		meta.CameraModel = model
	}
	for _, v := range values {
		if strings.Contains(v, CreatorTag) {
			meta.PreviouslyEncoded = true
			break
		}
	}
	if override, ok := config.MatchCameraOverride(a.overrides, values); ok {
		meta.QualityOverride = &override
	}
	return meta, nil
}

// Fields implements FieldExtractor by running `exiftool -j` under the
// adapter's serialization lock.
func (a *Adapter) Fields(ctx context.Context, path string) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd := exec.CommandContext(ctx, a.exiftoolPath, "-j", "-G0:0", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var docs []map[string]any
	if err := json.Unmarshal(out, &docs); err != nil {
		return nil, fmt.Errorf("exiftool output: %w", err)
	}
	if len(docs) == 0 {
		return map[string]string{}, nil
	}

	fields := make(map[string]string, len(docs[0]))
	for k, v := range docs[0] {
		switch val := v.(type) {
		case string:
			fields[stripGroup(k)] = val
		case float64:
			fields[stripGroup(k)] = fmt.Sprintf("%v", val)
		}
	}
	return fields, nil
}

// stripGroup removes an exiftool group prefix ("EXIF:Model" → "Model").
func stripGroup(key string) string {
	if idx := strings.LastIndexByte(key, ':'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// CopyPreserved transfers all preserved metadata from source onto target
// and stamps the custom creator tag, as one all-or-nothing exiftool write
// (the tool writes a temp copy and renames, so a failure never corrupts
// the target). Callers surface a failure as a warning event; it does not
// fail the job.
func (a *Adapter) CopyPreserved(ctx context.Context, source, target string, extraTags map[string]string) error {
	if a.exiftoolPath == "" {
		logger.Debug("metadata copy skipped, no external tool configured", "target", target)
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	args := []string{
		"-TagsFromFile", source,
		"-all:all",
		creatorToolArg,
	}
	for k, v := range extraTags {
		args = append(args, fmt.Sprintf("-%s=%s", k, v))
	}
	args = append(args, "-overwrite_original", target)

	cmd := exec.CommandContext(ctx, a.exiftoolPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("metadata copy: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// VerifyPreserved asserts the custom creator tag is present on path, the
// verify-on-complete tag check.
func (a *Adapter) VerifyPreserved(ctx context.Context, path string) error {
	if a.exiftoolPath == "" {
		return nil
	}
	fields, err := a.Fields(ctx, path)
	if err != nil {
		return err
	}
	for _, v := range fields {
		if strings.Contains(v, CreatorTag) {
			return nil
		}
	}
	return fmt.Errorf("preserved creator tag missing on %s", path)
}
