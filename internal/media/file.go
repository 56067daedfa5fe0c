package media

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
)

// File is a locally selected attachment. Type is the declared MIME type and
// may be empty.
type File interface {
	Name() string
	Type() string
	Open() (io.ReadCloser, error)
}

type localFile struct {
	path string
	typ  string
}

// Open wraps a file on disk. The declared type comes from the extension.
func Open(path string) (File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return localFile{path: path, typ: mime.TypeByExtension(filepath.Ext(path))}, nil
}

func (f localFile) Name() string                 { return filepath.Base(f.path) }
func (f localFile) Type() string                 { return f.typ }
func (f localFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// FromMultipart copies a file posted to the local API into memory. The
// request's temporary files are removed once the handler returns, before
// encoding has run.
func FromMultipart(fh *multipart.FileHeader) (File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return memFile{name: fh.Filename, typ: fh.Header.Get("Content-Type"), data: data}, nil
}

type memFile struct {
	name, typ string
	data      []byte
}

// Bytes wraps an in-memory attachment.
func Bytes(name, typ string, data []byte) File {
	return memFile{name: name, typ: typ, data: data}
}

func (f memFile) Name() string { return f.name }
func (f memFile) Type() string { return f.typ }
func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
