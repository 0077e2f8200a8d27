package rpcpeer

// Wire frame shapes. Every frame is a self-describing array whose first
// element is an int64 tag, matching spec.md's type=0/1/2 scheme exactly
// (the C++ original overloads tag 0 for both calls and fire-and-forget
// sends, distinguished only by tuple arity; this port follows the clearer,
// explicitly-tagged scheme spec.md documents).
const (
	frameCall     int64 = 0
	frameResponse int64 = 1
	frameNotify   int64 = 2
)

// buildCall encodes a (0, id, name, args) call frame.
func buildCall(id uint32, name string, args []any) []any {
	return []any{frameCall, int64(id), name, toAnySlice(args)}
}

// buildResponse encodes a (1, id, err, result) response frame. callErr nil
// means success; on failure result is nil and callErr carries the message.
func buildResponse(id uint32, callErr error, result any) []any {
	var errVal any
	if callErr != nil {
		errVal = callErr.Error()
	}
	return []any{frameResponse, int64(id), errVal, result}
}

// buildNotify encodes a (2, name, args) notification frame.
func buildNotify(name string, args []any) []any {
	return []any{frameNotify, name, toAnySlice(args)}
}

func toAnySlice(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
