package serialization

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/fileutil"
	"github.com/golang/snappy"
)

// maxLineSize bounds a single record of a line-delimited file.
const maxLineSize = 64 << 20

// Decoder is an interface that matches gob.Decoder and json.Decoder
type Decoder interface {
	// Decode extracts an object from the stream
	Decode(interface{}) error
}

// ErrStop is a special value returned from handlers to cease processing
var ErrStop = errors.New("stop processing requested")

// DecodeError reports the position of the record that could not be decoded
// or that the handler rejected. For line-delimited encodings Line is the
// 1-based line in the file, otherwise it is the 1-based record ordinal.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("record at line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying decode or handler error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// positioned decoders know where the last decoded record started
type positioned interface {
	Decoder
	Position() int
}

// lineDecoder decodes one JSON document per non-blank line
type lineDecoder struct {
	scanner *bufio.Scanner
	line    int
}

func newLineDecoder(r io.Reader) *lineDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &lineDecoder{scanner: s}
}

func (d *lineDecoder) Decode(v interface{}) error {
	for d.scanner.Scan() {
		d.line++
		buf := bytes.TrimSpace(d.scanner.Bytes())
		if len(buf) == 0 {
			continue
		}
		return json.Unmarshal(buf, v)
	}
	if err := d.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (d *lineDecoder) Position() int {
	return d.line
}

// countingDecoder numbers the records of a stream decoder
type countingDecoder struct {
	Decoder
	n int
}

func (d *countingDecoder) Decode(v interface{}) error {
	d.n++
	return d.Decoder.Decode(v)
}

func (d *countingDecoder) Position() int {
	return d.n
}

// decodeWith with extracts objects from the given decoder and passes them to the handler
func decodeWith(d positioned, elemType reflect.Type, handler func(x interface{}, pos int) error) error {
	for {
		elem := reflect.New(elemType).Interface()
		err := d.Decode(elem)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &DecodeError{Line: d.Position(), Err: err}
		}
		err = handler(elem, d.Position())
		if err == ErrStop {
			return nil
		}
		if err != nil {
			return &DecodeError{Line: d.Position(), Err: err}
		}
	}
}

// Decode loads a series of objects from a local, http or s3 path. If the path ends
// with .gz, .bz2 or .sz then the contents will be decompressed. The encoding is then
// determined by the remaining file extension: .json (a stream of documents), .jsonl,
// .ndjson or .txt (one document per line), or .gob.
//
//   var samples []*Record
//   err := serialization.Decode("s3://tc-data/train.jsonl.gz", func(r *Record) {
//     samples = append(samples, r)
//   })
//
// The handler may also return an error; returning ErrStop ends decoding early. A
// handler taking a second int parameter also receives the position of the record
// (see DecodeError).
// If handler is a pointer instead of a function, a single object is decoded into it.
func Decode(path string, handler interface{}) (err error) {
	r, err := fileutil.NewReader(path)
	if err != nil {
		return errors.Wrapf(err, "error loading %s", path)
	}
	defer errors.Defer(&err, r.Close)
	return decodeAs(r, path, handler)
}

// decodeAs is like Decode but uses the provided path to determine the compression and
// encoding used in the file.
func decodeAs(r io.Reader, path string, handler interface{}) error {
	inpath := path
	// Switch on compression
	switch {
	case strings.HasSuffix(path, ".gz"):
		path = strings.TrimSuffix(path, ".gz")
		rd, err := gzip.NewReader(r)
		if err != nil {
			return errors.Wrapf(err, "error loading %s", inpath)
		}
		defer rd.Close()
		r = rd
	case strings.HasSuffix(path, ".bz2"):
		path = strings.TrimSuffix(path, ".bz2")
		r = bzip2.NewReader(r)
	case strings.HasSuffix(path, ".sz"):
		path = strings.TrimSuffix(path, ".sz")
		r = snappy.NewReader(r)
	}

	// Switch on encoding
	var d positioned
	switch {
	case strings.HasSuffix(path, ".json"):
		d = &countingDecoder{Decoder: json.NewDecoder(r)}
	case strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".ndjson"), strings.HasSuffix(path, ".txt"):
		d = newLineDecoder(r)
	case strings.HasSuffix(path, ".gob"):
		d = &countingDecoder{Decoder: gob.NewDecoder(r)}
	default:
		return errors.Errorf("could not find decoder for %s", inpath)
	}

	// Examine the function signature
	f := reflect.ValueOf(handler)

	if f.Kind() == reflect.Ptr {
		if err := d.Decode(handler); err != nil {
			return errors.Wrapf(&DecodeError{Line: d.Position(), Err: err}, "error decoding %s", inpath)
		}
		return nil
	}
	if f.Kind() != reflect.Func {
		panic("expected a function or a pointer as last parameter")
	}

	funcType := f.Type()
	withPos := funcType.NumIn() == 2 && funcType.In(1).Kind() == reflect.Int
	if funcType.NumIn() != 1 && !withPos {
		panic("expected a function with one input parameter, or a pointer and an int")
	}
	if funcType.NumOut() > 1 {
		panic("expected a function with zero or one output parameter")
	}
	ptrType := funcType.In(0)
	if ptrType.Kind() != reflect.Ptr {
		panic("expected function parameter to be a pointer")
	}
	elemType := ptrType.Elem()

	// Do the actual decoding
	err := decodeWith(d, elemType, func(x interface{}, pos int) error {
		args := []reflect.Value{reflect.ValueOf(x)}
		if withPos {
			args = append(args, reflect.ValueOf(pos))
		}
		ret := f.Call(args)
		if len(ret) == 0 || ret[0].IsNil() {
			return nil
		}
		return ret[0].Interface().(error)
	})
	return errors.WrapfOrNil(err, "error decoding %s", inpath)
}
