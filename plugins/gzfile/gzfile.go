// Package gzfile implements a container plugin over gzip-compressed files,
// matching "gz://<path>" URIs. Like plugins/b64 and plugins/ihex it is a
// whole-file codec: the file is decompressed into memory on open and
// recompressed on every flushing write.
//
// Grounded on the teacher repo's own use of klauspost/compress/gzip
// (encoding/converter/convert.go, interval/bedunion.go) rather than the
// standard library's compress/gzip, matching the rest of the domain stack.
package gzfile

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/plugin"
)

// Name is this plugin's registry name.
const Name = "gzfile"

const scheme = "gz://"

// Plugin decompresses/recompresses a local gzip file.
type Plugin struct{}

// New returns a gzfile plugin.
func New() *Plugin { return &Plugin{} }

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        Name,
		Description: "gzip-compressed file container, addressed via gz://path",
		License:     "MIT",
	}
}

// AcceptURI implements plugin.Plugin.
func (p *Plugin) AcceptURI(uri string) bool {
	return strings.HasPrefix(uri, scheme)
}

// Open implements plugin.Plugin.
func (p *Plugin) Open(ctx context.Context, uri string, want perm.Set) (plugin.Desc, error) {
	path := strings.TrimPrefix(uri, scheme)
	f, err := os.Open(path)
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "gzfile: open", path)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "gzfile: gzip header", path)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "gzfile: inflate", path)
	}
	if err := zr.Close(); err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "gzfile: inflate close", path)
	}
	return plugin.Desc{
		Name:  Name,
		Perm:  want,
		RAddr: 0,
		Size:  uint64(len(data)),
		Ops:   &ops{path: path, data: data, perm: want},
	}, nil
}

type ops struct {
	mu   sync.Mutex
	path string
	data []byte
	perm perm.Set
}

func (o *ops) Read(localOff uint64, buf []byte) (int, error) {
	if !o.perm.CanRead() {
		return 0, ioerr.NewPermissionDenied("gzfile: read not permitted")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if localOff >= uint64(len(o.data)) {
		return 0, nil
	}
	return copy(buf, o.data[localOff:]), nil
}

func (o *ops) Write(localOff uint64, buf []byte) (int, error) {
	if !o.perm.CanWrite() && !o.perm.IsCOW() {
		return 0, ioerr.NewPermissionDenied("gzfile: write not permitted")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	end := localOff + uint64(len(buf))
	if end > uint64(len(o.data)) {
		grown := make([]byte, end)
		copy(grown, o.data)
		o.data = grown
	}
	n := copy(o.data[localOff:end], buf)
	if !o.perm.CanWrite() {
		return n, nil
	}
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	if _, err := zw.Write(o.data); err != nil {
		return 0, ioerr.NewParse(err, "gzfile: deflate", o.path)
	}
	if err := zw.Close(); err != nil {
		return 0, ioerr.NewParse(err, "gzfile: deflate close", o.path)
	}
	if err := os.WriteFile(o.path, b.Bytes(), 0o644); err != nil {
		return 0, ioerr.NewParse(err, "gzfile: write", o.path)
	}
	return n, nil
}
