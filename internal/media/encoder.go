package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// Result is the single value yielded by Encode.
type Result struct {
	DataURL string
	MIME    string
	Kind    models.Kind
	Name    string
	Size    int
	Err     error
}

// Encoder turns a selected file into a data URL
// (data:<mime>;base64,<payload>) that can be embedded in a message frame.
// No size limit is applied here.
type Encoder struct {
	log *slog.Logger
}

func NewEncoder(log *slog.Logger) *Encoder {
	if log == nil {
		log = slog.Default()
	}
	return &Encoder{log: log.With("component", "media")}
}

// Encode reads f on its own goroutine. The returned channel yields exactly
// one Result and is then closed.
func (e *Encoder) Encode(ctx context.Context, f File) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- e.encode(ctx, f)
	}()
	return out
}

func (e *Encoder) encode(ctx context.Context, f File) Result {
	res := Result{Name: f.Name()}
	rc, err := f.Open()
	if err != nil {
		res.Err = fmt.Errorf("media: open %s: %w", f.Name(), err)
		return res
	}
	defer rc.Close()

	data, err := io.ReadAll(ctxReader{ctx: ctx, r: rc})
	if err != nil {
		res.Err = fmt.Errorf("media: read %s: %w", f.Name(), err)
		return res
	}

	typ := baseType(f.Type())
	if typ == "" {
		typ = baseType(mimetype.Detect(data).String())
	}
	res.MIME = typ
	res.Kind = models.KindForMIME(typ)
	res.Size = len(data)
	res.DataURL = "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(data)

	e.log.Debug("attachment encoded", "name", f.Name(), "mime", typ, "size", humanize.Bytes(uint64(len(data))))
	return res
}

// baseType drops MIME parameters such as "; charset=utf-8".
func baseType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
