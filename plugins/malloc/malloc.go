// Package malloc implements a container plugin that backs a descriptor with
// an anonymous in-memory byte buffer instead of a file, for scratch
// physical ranges and tests. URIs look like "malloc://<name>?size=<n>";
// <name> only appears in the returned descriptor's Name, since each Open call
// allocates a fresh buffer (there is no shared, named heap across opens).
package malloc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/plugin"
)

// Name is this plugin's registry name.
const Name = "malloc"

const scheme = "malloc://"

// Plugin backs descriptors with anonymous in-memory buffers.
type Plugin struct{}

// New returns a malloc plugin.
func New() *Plugin { return &Plugin{} }

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        Name,
		Description: "in-memory scratch buffer, addressed via malloc://name?size=N",
		License:     "MIT",
	}
}

// AcceptURI implements plugin.Plugin.
func (p *Plugin) AcceptURI(uri string) bool {
	return strings.HasPrefix(uri, scheme)
}

// Open implements plugin.Plugin.
func (p *Plugin) Open(ctx context.Context, uri string, want perm.Set) (plugin.Desc, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "malloc: invalid uri", uri)
	}
	size := uint64(0)
	if s := u.Query().Get("size"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return plugin.Desc{}, ioerr.NewParse(err, "malloc: invalid size", s)
		}
		size = n
	}
	name := strings.TrimPrefix(uri, scheme)
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	return plugin.Desc{
		Name:  fmt.Sprintf("%s:%s", Name, name),
		Perm:  want,
		RAddr: 0,
		Size:  size,
		Ops:   &ops{buf: make([]byte, size), perm: want},
	}, nil
}

type ops struct {
	mu   sync.Mutex
	buf  []byte
	perm perm.Set
}

func (o *ops) Read(localOff uint64, buf []byte) (int, error) {
	if !o.perm.CanRead() {
		return 0, ioerr.NewPermissionDenied("malloc: read not permitted")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if localOff >= uint64(len(o.buf)) {
		return 0, nil
	}
	n := copy(buf, o.buf[localOff:])
	return n, nil
}

func (o *ops) Write(localOff uint64, buf []byte) (int, error) {
	if !o.perm.CanWrite() && !o.perm.IsCOW() {
		return 0, ioerr.NewPermissionDenied("malloc: write not permitted")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	end := localOff + uint64(len(buf))
	if end > uint64(len(o.buf)) {
		return 0, ioerr.NewAddressNotFound("malloc: write past end of buffer")
	}
	n := copy(o.buf[localOff:end], buf)
	return n, nil
}
