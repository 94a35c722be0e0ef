// Package b64 implements a container plugin over base64-encoded files,
// matching "b64://<path>" URIs. The whole file is decoded into memory on
// open and re-encoded on every flushing write, the same whole-file codec
// shape as plugins/ihex.
//
// encoding/base64 is the standard library's own transform for exactly this
// format; no example repo or ecosystem library wraps it more idiomatically
// for a simple decode-all/encode-all use, so this plugin is a justified
// stdlib-only leaf (see DESIGN.md).
package b64

import (
	"context"
	"encoding/base64"
	"os"
	"strings"
	"sync"

	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/plugin"
)

// Name is this plugin's registry name.
const Name = "b64"

const scheme = "b64://"

// Plugin decodes/encodes a base64-encoded local file.
type Plugin struct{}

// New returns a b64 plugin.
func New() *Plugin { return &Plugin{} }

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        Name,
		Description: "base64-encoded file container, addressed via b64://path",
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
	encoded, err := os.ReadFile(path)
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "b64: read", path)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "b64: decode", path)
	}
	return plugin.Desc{
		Name:  Name,
		Perm:  want,
		RAddr: 0,
		Size:  uint64(len(decoded)),
		Ops:   &ops{path: path, data: decoded, perm: want},
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
		return 0, ioerr.NewPermissionDenied("b64: read not permitted")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if localOff >= uint64(len(o.data)) {
		return 0, nil
	}
	n := copy(buf, o.data[localOff:])
	return n, nil
}

func (o *ops) Write(localOff uint64, buf []byte) (int, error) {
	if !o.perm.CanWrite() && !o.perm.IsCOW() {
		return 0, ioerr.NewPermissionDenied("b64: write not permitted")
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
		return n, nil // COW: overlay only, never flushed.
	}
	encoded := base64.StdEncoding.EncodeToString(o.data)
	if err := os.WriteFile(o.path, []byte(encoded), 0o644); err != nil {
		return 0, ioerr.NewParse(err, "b64: write", o.path)
	}
	return n, nil
}
