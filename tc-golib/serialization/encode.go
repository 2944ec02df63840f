package serialization

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"io"
	"strings"

	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/fileutil"
	"github.com/golang/snappy"
)

// Encode writes the object to the path, using the format specified by the file
// extension, which can be .json or .gob. The path may additionally have a .gz or
// .sz suffix, in which case the stream will be compressed with gzip or snappy.
func Encode(path string, obj interface{}) (err error) {
	enc, err := NewEncoder(path)
	if err != nil {
		return err
	}
	defer errors.Defer(&err, enc.Close)
	return enc.Encode(obj)
}

// Encoder is an interface that matches gob.Encoder and json.Encoder
type Encoder interface {
	// Encoder adds an item to the stream
	Encode(interface{}) error
}

// EncodeCloser is an encoder that can also close its underlying stream
type EncodeCloser struct {
	encoder Encoder
	closers []io.Closer
}

// Encode writes an object to the underlying stream
func (e *EncodeCloser) Encode(x interface{}) error {
	return e.encoder.Encode(x)
}

// Close closes the underlying stream
func (e *EncodeCloser) Close() error {
	var closeErr error
	// We must close in reverse order
	for i := len(e.closers) - 1; i >= 0; i-- {
		closeErr = errors.Combine(closeErr, e.closers[i].Close())
	}
	return closeErr
}

// NewEncoder opens the specified local or s3 path and returns an encoder that writes
// in the format specified by the file extension, which can be .json or .gob. The path
// may additionally have a .gz or .sz suffix, in which case the stream will be compressed.
func NewEncoder(path string) (*EncodeCloser, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(path, ".gz"), ".sz")
	if !strings.HasSuffix(base, ".json") && !strings.HasSuffix(base, ".gob") {
		return nil, errors.Errorf("could not find encoder for %s", path)
	}

	f, err := fileutil.NewBufferedWriter(path)
	if err != nil {
		return nil, err
	}

	var w io.WriteCloser = f
	closers := []io.Closer{f}

	// Switch on compression
	switch {
	case strings.HasSuffix(path, ".gz"):
		w = gzip.NewWriter(w)
		closers = append(closers, w)
	case strings.HasSuffix(path, ".sz"):
		w = snappy.NewBufferedWriter(w)
		closers = append(closers, w)
	}

	// Switch on encoding
	var e Encoder
	if strings.HasSuffix(base, ".json") {
		e = json.NewEncoder(w)
	} else {
		e = gob.NewEncoder(w)
	}

	return &EncodeCloser{
		encoder: e,
		closers: closers,
	}, nil
}
