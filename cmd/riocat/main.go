// riocat opens a single container URI through the rio façade and dumps a
// physical byte range to stdout. See doc.go for documentation.
package main

import (
	"flag"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/rio"
)

var (
	addr = flag.Uint64("addr", 0, "physical address to start reading from")
	size = flag.Uint64("size", 0, "number of bytes to read; 0 means the whole opened file")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Error.Printf("usage: riocat [-addr=N] [-size=N] <uri>")
		os.Exit(2)
	}
	uri := flag.Arg(0)

	ctx := vcontext.Background()
	x := rio.NewDefault(ctx)
	h, err := x.Open(ctx, uri, perm.Read)
	if err != nil {
		log.Error.Printf("open %s: %v", uri, err)
		os.Exit(1)
	}
	d, _ := x.Desc(h)

	n := *size
	if n == 0 {
		n = d.Size
	}
	buf := make([]byte, n)
	if _, err := x.Pread(*addr, buf); err != nil {
		log.Error.Printf("pread %s: %v", uri, err)
		os.Exit(1)
	}
	os.Stdout.Write(buf)
}
