package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/media"
)

type stubExtractor struct {
	fields map[string]string
	err    error
	calls  int
}

func (s *stubExtractor) Fields(context.Context, string) (map[string]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.fields, nil
}

func newTestAdapter(fields map[string]string, overrides []config.CameraOverrideEntry) (*Adapter, *stubExtractor) {
	stub := &stubExtractor{fields: fields}
	a := New("", overrides, NewCache())
	a.extractor = stub
	return a, stub
}

func TestFetchResolvesCameraOverride(t *testing.T) {
	cq := 32
	overrides := []config.CameraOverrideEntry{
		{Pattern: "hero", Override: media.QualityOverride{CQ: &cq}},
	}
	a, _ := newTestAdapter(map[string]string{
		"Model": "GoPro HERO11 Black",
		"Make":  "GoPro",
	}, overrides)

	meta, err := a.Fetch(context.Background(), "/in/clip.mp4", &media.Metadata{Codec: "h264"})
	if err != nil {
		t.Fatal(err)
	}
	if meta.CameraModel != "GoPro HERO11 Black" {
		t.Fatalf("camera model lost: %q", meta.CameraModel)
	}
	if meta.QualityOverride == nil || meta.QualityOverride.CQ == nil || *meta.QualityOverride.CQ != cq {
		t.Fatalf("override not carried through: %+v", meta.QualityOverride)
	}
	if meta.Codec != "h264" {
		t.Fatal("probed fields must be preserved")
	}
}

func TestFetchDetectsPreviouslyEncoded(t *testing.T) {
	a, _ := newTestAdapter(map[string]string{
		"CreatorTool": CreatorTag,
	}, nil)

	meta, err := a.Fetch(context.Background(), "/in/clip.mp4", &media.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if !meta.PreviouslyEncoded {
		t.Fatal("creator tag must mark the file previously encoded")
	}
}

func TestFetchCachesPerPath(t *testing.T) {
	a, stub := newTestAdapter(map[string]string{"Model": "DJI"}, nil)

	if _, err := a.Fetch(context.Background(), "/in/clip.mp4", &media.Metadata{}); err != nil {
		t.Fatal(err)
	}
	first, err := a.Fetch(context.Background(), "/in/clip.mp4", &media.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if stub.calls != 1 {
		t.Fatalf("second fetch must hit the cache, extractor ran %d times", stub.calls)
	}
	if got := a.cache.Get("/in/clip.mp4"); got != first {
		t.Fatal("cache must hold the returned entry")
	}
}

func TestFetchPropagatesExtractorError(t *testing.T) {
	a, _ := newTestAdapter(nil, nil)
	a.extractor = &stubExtractor{err: errors.New("tool crashed")}

	if _, err := a.Fetch(context.Background(), "/in/clip.mp4", &media.Metadata{}); err == nil {
		t.Fatal("extractor failure must surface")
	}
	if a.cache.Len() != 0 {
		t.Fatal("a failed extract must not be cached")
	}
}

func TestStripGroup(t *testing.T) {
	if stripGroup("EXIF:Model") != "Model" || stripGroup("Model") != "Model" {
		t.Fatal("group prefix handling wrong")
	}
}
