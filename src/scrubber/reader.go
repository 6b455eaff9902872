package scrubber

import "io"

// Reader scrubs a response body as it is read. Each chunk is compacted
// inside the caller's buffer, so reading allocates nothing.
type Reader struct {
	rc  io.ReadCloser
	ctx *Context
}

// NewReader wraps rc. ctx must be fresh for the response.
func NewReader(rc io.ReadCloser, ctx *Context) *Reader {
	return &Reader{rc: rc, ctx: ctx}
}

const maxConsecutiveEmptyReads = 100

// Read fills p with scrubbed bytes. A chunk that scrubs down to nothing
// is not reported; Read keeps reading until it has bytes or an error.
// A body that keeps returning no bytes and no error yields io.ErrNoProgress.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	empty := 0
	for {
		n, err := r.rc.Read(p)
		if n == 0 && err == nil {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return 0, io.ErrNoProgress
			}
			continue
		}
		empty = 0
		n = r.ctx.Scrub(p[:n])
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (r *Reader) Close() error { return r.rc.Close() }
