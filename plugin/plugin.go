// Package plugin defines the contract every container codec implements
// (spec.md §4.1) and an insertion-ordered registry used to resolve a URI to
// the plugin that should open it.
package plugin

import (
	"context"

	"github.com/rair-go/rio/perm"
)

// Metadata describes a plugin for documentation purposes only; it is never
// consulted programmatically.
type Metadata struct {
	Name        string
	Description string
	License     string
}

// Ops is the per-file operation set a plugin hands back from Open. All
// offsets are local to the file's own byte space [0, Size).
type Ops interface {
	// Read copies up to len(buf) bytes starting at localOff into buf,
	// returning the number of bytes read.
	Read(localOff uint64, buf []byte) (int, error)
	// Write stores buf starting at localOff. Plugins that are not opened
	// with perm.Write or perm.COW must return a PermissionDenied error
	// (see github.com/rair-go/rio/ioerr).
	Write(localOff uint64, buf []byte) (int, error)
}

// Desc is what a plugin's Open returns: everything the core needs to wrap
// the file in a descriptor.
type Desc struct {
	Name string
	Perm perm.Set
	// RAddr is the plugin-local base address preserved for round-tripping
	// (e.g. a HEX file's minimum occupied key); it is not necessarily the
	// descriptor's physical address in the core's address space.
	RAddr uint64
	Size  uint64
	Ops   Ops
}

// Plugin is the contract every container codec implements.
type Plugin interface {
	Metadata() Metadata
	// AcceptURI is a pure predicate: no I/O, no side effects.
	AcceptURI(uri string) bool
	Open(ctx context.Context, uri string, perm perm.Set) (Desc, error)
}

// Registry is an insertion-ordered list of plugins. Resolve returns the
// first plugin whose AcceptURI matches.
type Registry struct {
	plugins []Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends p to the end of the registry. Plugins registered
// earlier take priority on URI resolution.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
}

// Resolve returns the first plugin whose AcceptURI(uri) is true, and false
// if none accepts.
func (r *Registry) Resolve(uri string) (Plugin, bool) {
	for _, p := range r.plugins {
		if p.AcceptURI(uri) {
			return p, true
		}
	}
	return nil, false
}

// Plugins returns the registered plugins in registration order. The
// returned slice must not be mutated.
func (r *Registry) Plugins() []Plugin {
	return r.plugins
}
