package scrubber

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fragments are glued together to build HTML-ish inputs that hit tag
// boundaries far more often than random strings would.
var fragments = []string{
	"<pre>", "</pre>", "<PRE>", "</Pre>", "<pre class=x>", "<preamble>", "</prefix>",
	"<p", "re>", "</p", "<", "/", "p", "r", "e", ">", " ",
	"\n", "\r", "\r\n", "a", "text", "<div>", "</div>",
}

func fragmentsGen() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(fragments)-1)).Map(func(idx []int) string {
		var b strings.Builder
		for _, i := range idx {
			b.WriteString(fragments[i])
		}
		return b.String()
	})
}

func scrubString(opts Options, s string) string {
	buf := []byte(s)
	n := NewContext(opts).Scrub(buf)
	return string(buf[:n])
}

// splitScrub feeds s in chunks of the given size through one context.
func splitScrub(opts Options, s string, size int) string {
	ctx := NewContext(opts)
	var out bytes.Buffer
	buf := []byte(s)
	for len(buf) > 0 {
		k := min(size, len(buf))
		n := ctx.Scrub(buf[:k])
		out.Write(buf[:n])
		buf = buf[k:]
	}
	return out.String()
}

// preRegions returns every opener-to-closer span of s, found by running
// the state machine itself without deleting anything.
func preRegions(opts Options, s string) []string {
	ctx := NewContext(opts)
	var regions []string
	start := -1
	for i := 0; i < len(s); i++ {
		before := ctx.State()
		ctx.keep(s[i])
		after := ctx.State()
		if before == StateText && after == StatePre {
			start = i
		}
		if before == StatePre && after == StateText {
			regions = append(regions, s[start:i+1])
			start = -1
		}
	}
	if start >= 0 {
		regions = append(regions, s[start:])
	}
	return regions
}

func scrubProperties(t *testing.T, opts Options) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	properties.Property("output never longer than input", prop.ForAll(
		func(s string) bool {
			return len(scrubString(opts, s)) <= len(s)
		},
		fragmentsGen(),
	))

	properties.Property("idempotent", prop.ForAll(
		func(s string) bool {
			once := scrubString(opts, s)
			return scrubString(opts, once) == once
		},
		fragmentsGen(),
	))

	properties.Property("chunking does not change output", prop.ForAll(
		func(s string, size int) bool {
			return splitScrub(opts, s, size) == scrubString(opts, s)
		},
		fragmentsGen(),
		gen.IntRange(1, 16),
	))

	properties.Property("pre regions survive verbatim", prop.ForAll(
		func(s string) bool {
			out := scrubString(opts, s)
			for _, r := range preRegions(opts, s) {
				if !strings.Contains(out, r) {
					return false
				}
			}
			return true
		},
		fragmentsGen(),
	))

	properties.Property("input without newlines or pre is unchanged", prop.ForAll(
		func(s string) bool {
			s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
			if strings.Contains(strings.ToLower(s), "<pre") {
				return true
			}
			return scrubString(opts, s) == s
		},
		gen.AnyString(),
	))

	properties.Property("output is a subsequence of input", prop.ForAll(
		func(s string) bool {
			out := scrubString(opts, s)
			j := 0
			for i := 0; i < len(s) && j < len(out); i++ {
				if s[i] == out[j] {
					j++
				}
			}
			return j == len(out)
		},
		fragmentsGen(),
	))

	properties.TestingRun(t)
}

func TestScrubProperties(t *testing.T) {
	scrubProperties(t, Options{})
}

func TestScrubProperties_PrefixTags(t *testing.T) {
	scrubProperties(t, Options{PrefixTags: true})
}
