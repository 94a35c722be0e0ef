package rio

import (
	"bytes"
	"context"
	"encoding/gob"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"

	"github.com/rair-go/rio/desc"
	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
)

// <ioFileVersionHeader, ioFileVersion> is stored in the recordio header,
// mirroring cmd/bio-fusion/io.go's <fileVersionHeader, fileVersion> pair.
const (
	ioFileVersionHeader = "rioversion"
	ioFileVersion       = "RIO_V1"
)

// snapshotDesc is the persisted shape of one descriptor. Plugin-private
// in-memory state (e.g. the HEX sparse byte map) is never persisted; it is
// re-derived by reopening and reparsing the URI on deserialization.
type snapshotDesc struct {
	Handle    desc.Handle
	URI       string
	Perm      perm.Set
	PAddrBase uint64
	Size      uint64
}

type snapshotMap struct {
	PAddr uint64
	VAddr uint64
	Size  uint64
}

type snapshot struct {
	Descs []snapshotDesc
	Maps  []snapshotMap
}

func encodeGOB(gw *gob.Encoder, v interface{}) error {
	return gw.Encode(v)
}

func decodeGOB(gr *gob.Decoder, v interface{}) error {
	return gr.Decode(v)
}

// Serialize writes the descriptor index and the map index to w. Plugin-
// private in-memory state is not persisted (spec.md §6). Only the trailer
// carries data: the whole snapshot fits in it, so there is nothing to
// append as body records, matching cmd/bio-fusion/io.go's trailer-only
// pattern.
func (x *IO) Serialize(ctx context.Context, w io.Writer) error {
	recordiozstd.Init()
	rw := recordio.NewWriter(w, recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	rw.AddHeader(ioFileVersionHeader, ioFileVersion)
	rw.AddHeader(recordio.KeyTrailer, true)

	snap := snapshot{}
	for _, d := range x.descs.Iter() {
		snap.Descs = append(snap.Descs, snapshotDesc{
			Handle:    d.Handle,
			URI:       d.URI,
			Perm:      d.Perm,
			PAddrBase: d.PAddrBase,
			Size:      d.Size,
		})
	}
	for _, e := range x.maps.Iter() {
		snap.Maps = append(snap.Maps, snapshotMap{PAddr: e.PAddr, VAddr: e.VAddr, Size: e.Size})
	}

	var b bytes.Buffer
	if err := encodeGOB(gob.NewEncoder(&b), snap); err != nil {
		return ioerr.NewCustom("rio: serialize: " + err.Error())
	}
	rw.SetTrailer(b.Bytes())
	if err := rw.Finish(); err != nil {
		return ioerr.NewCustom("rio: serialize: finish: " + err.Error())
	}
	return nil
}

// DeserializeInto reads a snapshot written by Serialize from r and rebuilds
// a fresh IO: a new default registry is constructed, each persisted
// descriptor is re-opened by URI (failing the whole operation with
// IoPluginNotFound if no plugin accepts it) at its original PAddrBase via
// RegisterOpenAt so the physical layout is reproduced exactly, and finally
// every persisted map entry is replayed (spec.md §6, §9 "finalize hook").
func DeserializeInto(ctx context.Context, r io.Reader) (*IO, error) {
	recordiozstd.Init()
	rr := recordio.NewScanner(r, recordio.ScannerOpts{})
	versionFound := false
	for _, kv := range rr.Header() {
		if kv.Key == ioFileVersionHeader {
			if kv.Value.(string) != ioFileVersion {
				return nil, ioerr.NewCustom("rio: deserialize: version mismatch")
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		return nil, ioerr.NewCustom("rio: deserialize: " + ioFileVersionHeader + " not found")
	}

	var snap snapshot
	if err := decodeGOB(gob.NewDecoder(bytes.NewReader(rr.Trailer())), &snap); err != nil {
		return nil, ioerr.NewCustom("rio: deserialize: " + err.Error())
	}

	x := New(ctx, NewDefaultRegistry())
	for _, sd := range snap.Descs {
		p, ok := x.registry.Resolve(sd.URI)
		if !ok {
			return nil, ioerr.NewIoPluginNotFound("rio: deserialize", sd.URI)
		}
		pd, err := p.Open(ctx, sd.URI, sd.Perm)
		if err != nil {
			return nil, err
		}
		if _, err := x.descs.RegisterOpenAt(sd.URI, sd.Perm, pd, sd.PAddrBase); err != nil {
			return nil, err
		}
	}
	for _, sm := range snap.Maps {
		if err := x.maps.Map(sm.PAddr, sm.VAddr, sm.Size); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// SerializeFile is Serialize against a URI-addressed destination (local
// path, or anything github.com/grailbio/base/file's providers accept),
// matching cmd/bio-fusion/io.go's newFusionWriter file-handling.
func (x *IO) SerializeFile(ctx context.Context, path string) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return ioerr.NewParse(err, "rio: serialize: create", path)
	}
	if err := x.Serialize(ctx, out.Writer(ctx)); err != nil {
		out.Close(ctx)
		return err
	}
	if err := out.Close(ctx); err != nil {
		return ioerr.NewParse(err, "rio: serialize: close", path)
	}
	return nil
}

// DeserializeFile is DeserializeInto against a URI-addressed source.
func DeserializeFile(ctx context.Context, path string) (*IO, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, ioerr.NewParse(err, "rio: deserialize: open", path)
	}
	defer in.Close(ctx)
	return DeserializeInto(ctx, in.Reader(ctx))
}
