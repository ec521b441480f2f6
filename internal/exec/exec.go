// Package exec implements the "Execution" rules of spec's command layer:
// each Command is synchronous and total against a live backend, returning
// the reply Frame the connection driver then encodes and writes back.
//
// Grounded on the teacher's inline command bodies in example/server.go
// (a mutex, a map lookup, an Append* call) restructured as a pure function
// of (Command, *store.Backend) -> resp.Frame, so the connection driver owns
// encoding and writing while this package owns only backend semantics.
package exec

import (
	"github.com/kevlend/respd/pkg/resp"
	"github.com/kevlend/respd/pkg/store"
)

var okReply = resp.NewSimpleString("OK")

// Execute runs cmd against backend and returns the reply Frame. It never
// panics for a well-formed Command against a live Backend; the only way
// this call fails in practice is a resource exhaustion in the Go runtime
// itself, which per spec's error-handling policy is fatal to the
// connection, not something this layer catches and converts to a reply.
func Execute(cmd resp.Command, backend *store.Backend) resp.Frame {
	switch cmd.Kind {
	case resp.CmdGet:
		if v, ok := backend.Get(cmd.Key); ok {
			return v
		}
		return resp.NewNull()

	case resp.CmdSet:
		backend.Set(cmd.Key, cmd.Value)
		return okReply

	case resp.CmdHGet:
		if v, ok := backend.HGet(cmd.Key, cmd.Field); ok {
			return v
		}
		return resp.NewNull()

	case resp.CmdHSet:
		backend.HSet(cmd.Key, cmd.Field, cmd.Value)
		return okReply

	case resp.CmdHGetAll:
		entries, ok := backend.HGetAll(cmd.Key, cmd.Sort)
		if !ok {
			return resp.NewArray(nil)
		}
		items := make([]resp.Frame, 0, len(entries)*2)
		for _, e := range entries {
			items = append(items, resp.NewBulkString(e.Field), e.Value)
		}
		return resp.NewArray(items)

	case resp.CmdUnrecognized:
		// Lenient by design: an unknown command still gets a +OK rather
		// than dropping the connection. See spec's design notes; this is
		// a documented deviation from canonical Redis, not a bug.
		return okReply

	default:
		return okReply
	}
}
