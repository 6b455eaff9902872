package scrubber

import "golang.org/x/text/transform"

// Transformer adapts a Context to transform.Transformer for callers that
// work with transform.String, transform.NewReader or transform.NewWriter.
type Transformer struct {
	ctx *Context
}

var _ transform.Transformer = (*Transformer)(nil)

// NewTransformer returns a Transformer starting in StateText.
func NewTransformer(opts Options) *Transformer {
	return &Transformer{ctx: NewContext(opts)}
}

// Transform scrubs src into dst. Output never exceeds input, but a byte
// is only consumed once dst has room for it, so state never runs ahead
// of what was written.
func (t *Transformer) Transform(dst, src []byte, _ bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) && nDst < len(dst) {
		b := src[nSrc]
		if t.ctx.keep(b) {
			dst[nDst] = b
			nDst++
		}
		nSrc++
	}
	if nSrc < len(src) {
		err = transform.ErrShortDst
	}
	return nDst, nSrc, err
}

func (t *Transformer) Reset() { t.ctx.Reset() }
