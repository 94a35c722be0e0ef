// Package ihex implements the Intel HEX container plugin (spec.md §4.5):
// the representative non-trivial codec plugin, parsing a colon-prefixed
// ASCII record stream into a sparse byte map on open and fully
// re-serializing it on every flushing write.
//
// Supplemented from original_source/io/src/plugins/ihex.rs where spec.md's
// distillation is silent: Extended Segment Address (02) and Extended
// Linear Address (04) records each overwrite current_base wholesale rather
// than merging into a shared set of bitfields, matching the original's
// behavior exactly.
package ihex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/plugin"
	"github.com/rair-go/rio/sparse"
)

// Name is this plugin's registry name.
const Name = "ihex"

const scheme = "ihex://"

const (
	recData                    = 0x00
	recEOF                     = 0x01
	recExtendedSegmentAddress  = 0x02
	recStartSegmentAddress     = 0x03
	recExtendedLinearAddress   = 0x04
	recStartLinearAddress      = 0x05
)

// Plugin is the Intel HEX container codec.
type Plugin struct{}

// New returns an ihex plugin.
func New() *Plugin { return &Plugin{} }

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        Name,
		Description: "Intel HEX record-stream container, addressed via ihex://path",
		License:     "MIT",
	}
}

// AcceptURI implements plugin.Plugin.
func (p *Plugin) AcceptURI(uri string) bool {
	return strings.HasPrefix(uri, scheme)
}

// Open implements plugin.Plugin. It reads the entire underlying raw file
// into memory and parses it into a sparse byte map.
func (p *Plugin) Open(ctx context.Context, uri string, want perm.Set) (plugin.Desc, error) {
	path := strings.TrimPrefix(uri, scheme)
	raw, err := os.ReadFile(path)
	if err != nil {
		return plugin.Desc{}, ioerr.NewParse(err, "ihex: read", path)
	}
	f := &file{
		path:  path,
		bytes: sparse.NewMap(),
		perm:  want,
	}
	if err := f.parse(raw); err != nil {
		return plugin.Desc{}, err
	}
	min, max, ok := f.bytes.MinMaxKey()
	size := uint64(0)
	if ok {
		size = max - min + 1
	} else {
		min = 0
	}
	f.keyBase = min
	return plugin.Desc{
		Name:  Name,
		Perm:  want,
		RAddr: min,
		Size:  size,
		Ops:   f,
	}, nil
}

// file is the plugin-private, in-memory representation of one opened HEX
// file (spec.md §3 "HEX file internal").
type file struct {
	path    string
	bytes   *sparse.Map
	ssa     *uint32
	sla     *uint32
	perm    perm.Set
	keyBase uint64 // = min occupied key at open time
}

// parse consumes raw as a sequence of colon-prefixed records, stopping at
// the first EOF (01) record. Line endings may be CR, LF, or CRLF.
func (f *file) parse(raw []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(normalizeLineEndings(raw)))
	currentBase := uint32(0)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return ioerr.NewCustom(fmt.Sprintf("Invalid Ihex entry at line %d", lineNo))
		}
		switch rec.typ {
		case recData:
			for i, b := range rec.payload {
				f.bytes.Set(uint64(currentBase)+uint64(rec.addr)+uint64(i), b)
			}
		case recEOF:
			return nil
		case recExtendedSegmentAddress:
			if len(rec.payload) != 2 {
				return ioerr.NewCustom(fmt.Sprintf("Invalid Ihex entry at line %d", lineNo))
			}
			currentBase = uint32(rec.payload[0])<<8 | uint32(rec.payload[1])
			currentBase <<= 4
		case recStartSegmentAddress:
			if len(rec.payload) != 4 {
				return ioerr.NewCustom(fmt.Sprintf("Invalid Ihex entry at line %d", lineNo))
			}
			v := be32(rec.payload)
			f.ssa = &v
		case recExtendedLinearAddress:
			if len(rec.payload) != 2 {
				return ioerr.NewCustom(fmt.Sprintf("Invalid Ihex entry at line %d", lineNo))
			}
			currentBase = uint32(rec.payload[0])<<8 | uint32(rec.payload[1])
			currentBase <<= 16
		case recStartLinearAddress:
			if len(rec.payload) != 4 {
				return ioerr.NewCustom(fmt.Sprintf("Invalid Ihex entry at line %d", lineNo))
			}
			v := be32(rec.payload)
			f.sla = &v
		default:
			return ioerr.NewCustom(fmt.Sprintf("Invalid Ihex entry at line %d", lineNo))
		}
	}
	// A well-formed file always terminates with an explicit EOF record; a
	// stream that runs out without one is treated as an empty/truncated
	// file rather than an error, mirroring the original's tolerance for
	// empty inputs (spec.md §6: "Empty files (EOF only) are accepted").
	return nil
}

func normalizeLineEndings(raw []byte) []byte {
	s := strings.ReplaceAll(string(raw), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(s)
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

type record struct {
	typ     byte
	addr    uint16
	payload []byte
}

// parseRecord parses one ":"-prefixed line into a record. The checksum
// field is deliberately not verified on read (spec.md §4.5, §9): other
// tools accept files with incorrect checksums, and rejecting them would
// make this codec stricter than the ecosystem it interoperates with.
func parseRecord(line string) (record, error) {
	if len(line) < 1 || line[0] != ':' {
		return record{}, fmt.Errorf("missing leading colon")
	}
	body := line[1:]
	raw, err := hex.DecodeString(body)
	if err != nil {
		return record{}, err
	}
	if len(raw) < 5 {
		return record{}, fmt.Errorf("record too short")
	}
	byteCount := raw[0]
	if len(raw) != int(byteCount)+5 {
		return record{}, fmt.Errorf("byte count mismatch")
	}
	addr := uint16(raw[1])<<8 | uint16(raw[2])
	typ := raw[3]
	payload := raw[4 : 4+byteCount]
	return record{typ: typ, addr: addr, payload: payload}, nil
}

// Read implements plugin.Ops. Bytes outside occupied keys are sparse-
// filled with 0, per spec.md §4.5.
func (f *file) Read(localOff uint64, buf []byte) (int, error) {
	if !f.perm.CanRead() {
		return 0, ioerr.NewPermissionDenied("ihex: read not permitted")
	}
	for i := range buf {
		buf[i] = f.bytes.GetOrZero(f.keyBase + localOff + uint64(i))
	}
	return len(buf), nil
}

// Write implements plugin.Ops. Updates the in-memory sparse map; if
// perm.Write is set, the file is then fully re-serialized to disk
// (spec.md §4.5). COW-only writes stay in memory and are never flushed.
func (f *file) Write(localOff uint64, buf []byte) (int, error) {
	if !f.perm.CanWrite() && !f.perm.IsCOW() {
		return 0, ioerr.NewPermissionDenied("ihex: write not permitted")
	}
	for i, b := range buf {
		f.bytes.Set(f.keyBase+localOff+uint64(i), b)
	}
	if !f.perm.CanWrite() {
		return len(buf), nil
	}
	if err := f.flush(); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// flush fully re-serializes the sparse map to f.path: truncate, emit
// Record 03/05 if present, walk the sparse map in ascending key order
// emitting Record 02/04 on base changes and Record 00 data lines, then
// Record 01. The whole stream is written with a single os.WriteFile call;
// no file handle is held open between calls, so there is never more than
// one live handle to the path.
func (f *file) flush() error {
	var buf bytes.Buffer
	if f.ssa != nil {
		writeRecord(&buf, 0, recStartSegmentAddress, be32Bytes(*f.ssa))
	}
	if f.sla != nil {
		writeRecord(&buf, 0, recStartLinearAddress, be32Bytes(*f.sla))
	}

	var lineAddrs []uint64
	var lineBytes []byte
	haveBase := false
	var curBase uint64 // upper bits currently emitted via 02/04
	var prevKey uint64
	first := true

	flushLine := func() {
		if len(lineBytes) == 0 {
			return
		}
		addr := uint16(lineAddrs[0] & 0xFFFF)
		writeRecord(&buf, addr, recData, lineBytes)
		lineBytes = nil
		lineAddrs = nil
	}

	f.bytes.Ascend(func(key uint64, b byte) bool {
		base := key &^ 0xFFFF
		discontinuous := !first && key != prevKey+1
		baseChanged := !haveBase || base != curBase
		if discontinuous || len(lineBytes) == 16 || (baseChanged && len(lineBytes) > 0) {
			flushLine()
		}
		if baseChanged {
			curBase = base
			haveBase = true
			if curBase > 0xFFFFF {
				writeRecord(&buf, 0, recExtendedLinearAddress, []byte{byte(curBase >> 24), byte(curBase >> 16)})
			} else {
				writeRecord(&buf, 0, recExtendedSegmentAddress, []byte{byte(curBase >> 12), byte(curBase >> 4)})
			}
		}
		lineBytes = append(lineBytes, b)
		lineAddrs = append(lineAddrs, key)
		prevKey = key
		first = false
		return true
	})
	flushLine()
	writeRecord(&buf, 0, recEOF, nil)

	if err := os.WriteFile(f.path, buf.Bytes(), 0o644); err != nil {
		return ioerr.NewParse(err, "ihex: write", f.path)
	}
	return nil
}

func be32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// writeRecord emits one Record line, computing its checksum as
// (256 - (sum mod 256)) mod 256 over byte-count + address + type +
// payload (spec.md §4.5).
func writeRecord(w *bytes.Buffer, addr uint16, typ byte, payload []byte) {
	byteCount := byte(len(payload))
	sum := int(byteCount) + int(addr>>8) + int(addr&0xFF) + int(typ)
	for _, b := range payload {
		sum += int(b)
	}
	checksum := byte((256 - (sum % 256)) % 256)

	w.WriteByte(':')
	fmt.Fprintf(w, "%02X%04X%02X", byteCount, addr, typ)
	for _, b := range payload {
		fmt.Fprintf(w, "%02X", b)
	}
	fmt.Fprintf(w, "%02X\n", checksum)
}
