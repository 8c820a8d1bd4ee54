package sequence

import (
	"errors"
	"os"
	"path/filepath"
)

// Writer draws sequences from its own Source and writes them to files.
// A Writer is not safe for concurrent use; build one per goroutine.
type Writer struct {
	src     Source
	parents bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithParents creates every missing ancestor of the output directory
// instead of only the immediate parent.
func WithParents() Option {
	return func(w *Writer) { w.parents = true }
}

// NewWriter returns a Writer drawing from src. A nil src is replaced by a
// PCG generator seeded from the OS entropy source.
func NewWriter(src Source, opts ...Option) (*Writer, error) {
	if src == nil {
		var err error
		if src, err = systemSource(); err != nil {
			return nil, err
		}
	}
	w := &Writer{src: src}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write seeds a fresh PRNG from the OS entropy source, draws 128 bits and
// writes them to path with the given encoding.
func Write(path string, enc Encoding) error {
	w, err := NewWriter(nil)
	if err != nil {
		return err
	}
	return w.Write(path, enc)
}

// Generate draws the next sequence for enc.
func (w *Writer) Generate(enc Encoding) BitSequence {
	return Draw(w.src, enc)
}

// Write draws a sequence and writes it to path.
func (w *Writer) Write(path string, enc Encoding) error {
	_, err := w.WriteNew(path, enc)
	return err
}

// WriteNew is Write that also hands back the sequence it wrote.
func (w *Writer) WriteNew(path string, enc Encoding) (BitSequence, error) {
	seq := w.Generate(enc)
	return seq, w.WriteSequence(path, seq, enc)
}

// WriteSequence writes an existing sequence to path, creating the parent
// directory when it is absent. The file is truncated if it exists.
func (w *Writer) WriteSequence(path string, seq BitSequence, enc Encoding) (err error) {
	data, err := seq.Encode(enc)
	if err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(path), w.parents); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &FileOpenError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &WriteError{Path: path, Err: cerr}
		}
	}()
	if _, err := f.Write(data); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// EnsureDir creates dir if it does not already exist as a directory. Only
// the last path element is created unless parents is set.
func EnsureDir(dir string, parents bool) error {
	if dir == "" || dir == "." {
		return nil
	}
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return nil
	}
	var err error
	if parents {
		err = os.MkdirAll(dir, 0o755)
	} else {
		err = os.Mkdir(dir, 0o755)
	}
	// lost a race with another creator
	if errors.Is(err, os.ErrExist) {
		if fi, serr := os.Stat(dir); serr == nil && fi.IsDir() {
			return nil
		}
	}
	if err != nil {
		return &DirectoryCreationError{Dir: dir, Err: err}
	}
	return nil
}
