package geoloc

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// maxLineSize bounds one input line (one document or one model line).
const maxLineSize = 1 << 20

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
)

// openInput opens path for reading, transparently decompressing gzip and
// bzip2 content. The returned function closes every layer.
func openInput(path string) (io.Reader, func() error, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	br := bufio.NewReaderSize(fh, 1<<16)
	head, _ := br.Peek(3)
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			fh.Close()
			return nil, nil, errors.Wrapf(err, "reading gzip header of %s", path)
		}
		return zr, func() error {
			zr.Close()
			return fh.Close()
		}, nil
	case bytes.HasPrefix(head, bzip2Magic):
		return bzip2.NewReader(br), fh.Close, nil
	}
	return br, fh.Close, nil
}

// createOutput creates path for writing, gzip-compressed when the name ends
// in ".gz". The returned function flushes and closes every layer; the file is
// removed if anything fails, so no partial output is left behind.
func createOutput(path string) (io.Writer, func(failed bool) error, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating %s", path)
	}
	bw := bufio.NewWriterSize(out, 1<<16)
	var zw *gzip.Writer
	var w io.Writer = bw
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(bw)
		w = zw
	}
	finish := func(failed bool) error {
		var ferr error
		if !failed {
			if zw != nil {
				ferr = zw.Close()
			}
			if ferr == nil {
				ferr = bw.Flush()
			}
		}
		if cerr := out.Close(); ferr == nil {
			ferr = cerr
		}
		if failed || ferr != nil {
			os.Remove(path)
		}
		if ferr != nil {
			return errors.Wrapf(ferr, "writing %s", path)
		}
		return nil
	}
	return w, finish, nil
}

// newLineScanner returns a scanner accepting lines up to maxLineSize.
func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

// isSeparator reports field separators: commas and any whitespace.
func isSeparator(r rune) bool { return r == ',' || unicode.IsSpace(r) }

// splitFields splits a document line into fields. Empty fields are dropped.
func splitFields(line string) []string {
	return strings.FieldsFunc(line, isSeparator)
}

// ParseDocument parses one input line. With withCoord the first two fields
// are latitude and longitude.
func ParseDocument(line string, withCoord bool) (Document, error) {
	fields := splitFields(line)
	if !withCoord {
		return Document{Features: fields}, nil
	}
	if len(fields) < 2 {
		return Document{}, errors.Errorf("want lat,lon,features... got %d fields", len(fields))
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Document{}, errors.Wrap(err, "latitude")
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Document{}, errors.Wrap(err, "longitude")
	}
	return Document{Coord: Coord{Lat: lat, Lon: lon}, HasCoord: true, Features: fields[2:]}, nil
}

// DocumentReader reads one document per line. Blank lines are skipped when
// coordinates are expected and yield an empty document otherwise, so that
// classification output stays aligned with its input.
type DocumentReader struct {
	sc        *bufio.Scanner
	withCoord bool
	line      int
	doc       Document
	err       error
}

// NewDocumentReader reads documents from r.
func NewDocumentReader(r io.Reader, withCoord bool) *DocumentReader {
	return &DocumentReader{sc: newLineScanner(r), withCoord: withCoord}
}

// Next advances to the next document.
func (dr *DocumentReader) Next() bool {
	if dr.err != nil {
		return false
	}
	for dr.sc.Scan() {
		dr.line++
		text := dr.sc.Text()
		if dr.withCoord && strings.TrimSpace(text) == "" {
			continue
		}
		doc, err := ParseDocument(text, dr.withCoord)
		if err != nil {
			dr.err = errors.Wrapf(err, "line %d", dr.line)
			return false
		}
		dr.doc = doc
		return true
	}
	if err := dr.sc.Err(); err != nil {
		dr.err = errors.Wrapf(err, "line %d", dr.line+1)
	}
	return false
}

// Document returns the current document.
func (dr *DocumentReader) Document() Document { return dr.doc }

// Line returns the line number of the current document.
func (dr *DocumentReader) Line() int { return dr.line }

// Err returns the first read or parse error.
func (dr *DocumentReader) Err() error { return dr.err }

// ReadDocuments reads every document of a (possibly compressed) file.
func ReadDocuments(path string, withCoord bool) ([]Document, error) {
	r, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var docs []Document
	dr := NewDocumentReader(r, withCoord)
	for dr.Next() {
		docs = append(docs, dr.Document())
	}
	if err := dr.Err(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return docs, nil
}

// LoadStopwords reads one token per line into an Index.
func LoadStopwords(path string) (*Index, error) {
	r, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	ix := NewIndex(defaultIndexSize)
	sc := newLineScanner(r)
	for sc.Scan() {
		word := strings.TrimSpace(sc.Text())
		if word != "" {
			ix.Insert(word)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return ix, nil
}

// IndexFeatures collects every token of an input file, for use as the
// vocabulary filter of a model load. With rate > 0 the tokens go into a Bloom
// filter sized from a first counting pass; otherwise into an exact Index.
func IndexFeatures(path string, withCoord bool, rate float64) (FeatureFilter, error) {
	if rate <= 0 {
		ix := NewIndex(defaultIndexSize)
		err := scanFeatures(path, withCoord, func(w string) { ix.Insert(w) })
		if err != nil {
			return nil, err
		}
		return ix, nil
	}
	var n uint
	if err := scanFeatures(path, withCoord, func(string) { n++ }); err != nil {
		return nil, err
	}
	bf := NewBloomFilter(n, rate)
	if err := scanFeatures(path, withCoord, bf.Add); err != nil {
		return nil, err
	}
	return bf, nil
}

func scanFeatures(path string, withCoord bool, fn func(string)) error {
	r, closeFn, err := openInput(path)
	if err != nil {
		return err
	}
	defer closeFn()

	dr := NewDocumentReader(r, withCoord)
	for dr.Next() {
		for _, w := range dr.Document().Features {
			fn(w)
		}
	}
	if err := dr.Err(); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}
