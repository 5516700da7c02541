package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// packPtrLen and unpackPtrLen encode/decode the (ptr, len) pair every ABI
// export returns as a single i64: ptr in the high 32 bits, len in the low
// 32 bits. This mirrors the Extism-style alloc/dealloc guest-memory
// convention: the host writes request bytes into guest memory it
// allocated via the plugin's own alloc export, calls the export, and
// reads the response back the same way.
func packPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpackPtrLen(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// guestABI wraps the two exports every plugin module must provide beyond
// its load/init/process entry points.
type guestABI struct {
	mod     api.Module
	alloc   api.Function
	dealloc api.Function
}

func newGuestABI(mod api.Module) (*guestABI, error) {
	alloc := mod.ExportedFunction("alloc")
	dealloc := mod.ExportedFunction("dealloc")
	if alloc == nil || dealloc == nil {
		return nil, fmt.Errorf("plugin module missing alloc/dealloc exports")
	}
	return &guestABI{mod: mod, alloc: alloc, dealloc: dealloc}, nil
}

// writeBytes allocates length(data) bytes in guest memory and copies data
// into it, returning the guest pointer. Caller must free it once done.
func (g *guestABI) writeBytes(ctx context.Context, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	res, err := g.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("guest alloc: %w", err)
	}
	ptr := uint32(res[0])
	if !g.mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("guest memory write out of range")
	}
	return ptr, nil
}

func (g *guestABI) free(ctx context.Context, ptr, length uint32) {
	if ptr == 0 {
		return
	}
	_, _ = g.dealloc.Call(ctx, uint64(ptr), uint64(length))
}

// readBytes copies length bytes out of guest memory at ptr.
func (g *guestABI) readBytes(ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf, ok := g.mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("guest memory read out of range")
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// callJSON invokes a guest export of the form fn(ptr, len) -> packed(ptr,
// len), passing input as the request body and returning the response
// bytes. The guest is responsible for freeing its own response buffer
// only if it chose to allocate one that outlives the call; by convention
// in this ABI, the host frees both request and response buffers.
func (g *guestABI) callJSON(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	reqPtr, err := g.writeBytes(ctx, input)
	if err != nil {
		return nil, err
	}
	defer g.free(ctx, reqPtr, uint32(len(input)))

	res, err := fn.Call(ctx, uint64(reqPtr), uint64(len(input)))
	if err != nil {
		return nil, err
	}
	respPtr, respLen := unpackPtrLen(res[0])
	out, err := g.readBytes(respPtr, respLen)
	if err != nil {
		return nil, err
	}
	g.free(ctx, respPtr, respLen)
	return out, nil
}

// callJSONNoArgs is callJSON for zero-argument exports like load().
func (g *guestABI) callJSONNoArgs(ctx context.Context, fn api.Function) ([]byte, error) {
	res, err := fn.Call(ctx)
	if err != nil {
		return nil, err
	}
	respPtr, respLen := unpackPtrLen(res[0])
	out, err := g.readBytes(respPtr, respLen)
	if err != nil {
		return nil, err
	}
	g.free(ctx, respPtr, respLen)
	return out, nil
}
