package sandbox

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// Host functions registered under the "octabot" module. Each receives the
// calling module (so it can read/write that plugin's own guest memory
// through its alloc/dealloc exports) and the context threaded from the
// original Load/Init/Process call, which carries the plugin's name for kv
// namespacing.

func (h *Host) hostKVGet(ctx context.Context, mod api.Module, keyPtr, keyLen uint32) uint64 {
	abi, err := newGuestABI(mod)
	if err != nil {
		return 0
	}
	keyBytes, err := abi.readBytes(keyPtr, keyLen)
	if err != nil {
		return 0
	}
	plugin := pluginNameFromContext(ctx)
	val, ok, err := h.kv.Get(ctx, plugin, string(keyBytes))
	if err != nil || !ok {
		return 0
	}
	outPtr, err := abi.writeBytes(ctx, []byte(val))
	if err != nil {
		return 0
	}
	return packPtrLen(outPtr, uint32(len(val)))
}

func (h *Host) hostKVSet(ctx context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen, ttlSecs uint32) uint32 {
	abi, err := newGuestABI(mod)
	if err != nil {
		return 1
	}
	keyBytes, err := abi.readBytes(keyPtr, keyLen)
	if err != nil {
		return 1
	}
	valBytes, err := abi.readBytes(valPtr, valLen)
	if err != nil {
		return 1
	}
	plugin := pluginNameFromContext(ctx)
	var ttl time.Duration
	if ttlSecs > 0 {
		ttl = time.Duration(ttlSecs) * time.Second
	}
	if err := h.kv.Set(ctx, plugin, string(keyBytes), string(valBytes), ttl); err != nil {
		return 1
	}
	return 0
}

func (h *Host) hostHTTPRequest(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	abi, err := newGuestABI(mod)
	if err != nil {
		return 0
	}
	reqBytes, err := abi.readBytes(reqPtr, reqLen)
	if err != nil {
		return 0
	}
	respBytes := h.httpCap.do(ctx, reqBytes)
	outPtr, err := abi.writeBytes(ctx, respBytes)
	if err != nil {
		return 0
	}
	return packPtrLen(outPtr, uint32(len(respBytes)))
}

func (h *Host) hostLog(ctx context.Context, mod api.Module, level, msgPtr, msgLen uint32) {
	abi, err := newGuestABI(mod)
	if err != nil {
		return
	}
	msgBytes, err := abi.readBytes(msgPtr, msgLen)
	if err != nil {
		return
	}
	plugin := pluginNameFromContext(ctx)
	logger := h.log.Named("plugin").With("plugin", plugin)
	switch {
	case level >= 3:
		logger.Error(string(msgBytes))
	case level == 2:
		logger.Warn(string(msgBytes))
	default:
		logger.Info(string(msgBytes))
	}
}
