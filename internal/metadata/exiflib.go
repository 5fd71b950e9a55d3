package metadata

import (
	"context"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ExifLibExtractor is the in-process fallback FieldExtractor, used when no
// external metadata tool is configured (and by the demo/test paths). It
// walks whatever EXIF block the file carries via goexif; files without one
// yield an empty field set rather than an error, since most containers the
// scanner accepts have no EXIF at all.
type ExifLibExtractor struct{}

func (e *ExifLibExtractor) Fields(_ context.Context, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return map[string]string{}, nil
	}

	w := &fieldWalker{fields: make(map[string]string)}
	if err := x.Walk(w); err != nil {
		return nil, err
	}
	return w.fields, nil
}

type fieldWalker struct {
	fields map[string]string
}

func (w *fieldWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if s, err := tag.StringVal(); err == nil {
		w.fields[string(name)] = s
	}
	return nil
}
