package protocol

import (
	"bytes"
	"sync"
)

// maxPooledBody caps the capacity of a compound body buffer kept for reuse.
// A larger one, grown by a big Transfer or map, goes to the GC.
const maxPooledBody = 64 * 1024

// bodyPool holds scratch buffers for list, map and array bodies, which are
// encoded before their size and count prefix can be written.
var bodyPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	body := bodyPool.Get().(*bytes.Buffer)
	body.Reset()
	return body
}

func putBuffer(body *bytes.Buffer) {
	if body.Cap() <= maxPooledBody {
		bodyPool.Put(body)
	}
}
