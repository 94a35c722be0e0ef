// Package rio ties together the plugin registry, the physical descriptor
// index, and the virtual map index into the single façade an embedder talks
// to (spec.md §4.4).
package rio

import (
	"github.com/rair-go/rio/plugin"
	"github.com/rair-go/rio/plugins/b64"
	"github.com/rair-go/rio/plugins/gzfile"
	"github.com/rair-go/rio/plugins/ihex"
	"github.com/rair-go/rio/plugins/malloc"
	"github.com/rair-go/rio/plugins/rawfile"
)

// NewDefaultRegistry returns a registry with every built-in plugin
// registered in first-match-wins order: the scheme-prefixed codecs first
// (ihex, b64, malloc, gzfile), then rawfile last as the scheme-less
// catch-all, mirroring original_source/src/io/files.rs's registration
// order.
func NewDefaultRegistry() *plugin.Registry {
	r := plugin.NewRegistry()
	r.Register(ihex.New())
	r.Register(b64.New())
	r.Register(malloc.New())
	r.Register(gzfile.New())
	r.Register(rawfile.New())
	return r
}
