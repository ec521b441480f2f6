// Command server starts a respd RESP2/RESP3 server, wiring a sharded
// pkg/store.Backend into the pkg/resp + internal/exec command pipeline via
// respd's gnet event loop. Flags follow the teacher's
// example/server.go/example/memory_kv/server.go almost verbatim (network,
// addr, multicore, reusePort, pprofDebug, pprofAddr), extended with
// -shards for the backend's concurrency fan-out and -max-frame-bytes/
// -max-depth for the decoder's §5 resource ceiling, per SPEC_FULL.md §1.
package main

import (
	"flag"
	"fmt"
	"log"

	"net/http"
	_ "net/http/pprof"

	"github.com/kevlend/respd"
	"github.com/kevlend/respd/pkg/resp"
	"github.com/kevlend/respd/pkg/store"
)

func main() {
	defaultLimits := resp.DefaultLimits()

	var network string
	var addr string
	var multicore bool
	var reusePort bool
	var pprofDebug bool
	var pprofAddr string
	var shards int
	var maxFrameBytes int
	var maxDepth int
	flag.StringVar(&network, "network", "tcp", "server network (default \"tcp\")")
	flag.StringVar(&addr, "addr", "127.0.0.1:6380", "server addr (default \"127.0.0.1:6380\")")
	flag.BoolVar(&multicore, "multicore", true, "multicore")
	flag.BoolVar(&reusePort, "reusePort", false, "reusePort")
	flag.BoolVar(&pprofDebug, "pprofDebug", false, "open pprof")
	flag.StringVar(&pprofAddr, "pprofAddr", ":8888", "pprof address")
	flag.IntVar(&shards, "shards", store.DefaultShardCount, "number of backend shards (rounded up to a power of two)")
	flag.IntVar(&maxFrameBytes, "max-frame-bytes", defaultLimits.MaxFrameBytes, "maximum bytes for a single BulkString payload")
	flag.IntVar(&maxDepth, "max-depth", defaultLimits.MaxNestingDepth, "maximum nesting depth for Array/Set/Map frames")
	flag.Parse()

	resp.SetLimits(resp.Limits{
		MaxFrameBytes:        maxFrameBytes,
		MaxNestingDepth:       maxDepth,
		MaxContainerElements: defaultLimits.MaxContainerElements,
	})

	if pprofDebug {
		go func() {
			log.Println(http.ListenAndServe(pprofAddr, nil))
		}()
	}

	protoAddr := fmt.Sprintf("%s://%s", network, addr)
	backend := store.NewSharded(shards)

	rh := respd.NewRedHub(
		func(c *respd.Conn) (out []byte, action respd.Action) {
			return
		},
		func(c *respd.Conn, err error) (action respd.Action) {
			return
		},
		backend,
	)

	log.Printf("started respd server at %s (shards=%d)", protoAddr, shards)
	options := respd.Options{
		Multicore: multicore,
		ReusePort: reusePort,
	}
	if err := respd.ListenAndServe(protoAddr, options, rh); err != nil {
		log.Fatal(err)
	}
}
