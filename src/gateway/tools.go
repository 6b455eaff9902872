package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/transform"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/scrubber"
)

// ScrubInput is the input schema for the scrub_html tool.
type ScrubInput struct {
	HTML       string `json:"html" jsonschema:"the HTML document to scrub"`
	PrefixTags *bool  `json:"prefixTags,omitempty" jsonschema:"treat any <pre... tag as preformatted (default from gateway config)"`
}

// ScrubOutput is the output schema for the scrub_html tool.
type ScrubOutput struct {
	HTML    string `json:"html"`
	Removed int    `json:"removed"`
}

// RegisterTools adds the scrub_html tool to s. defaults supplies
// prefixTags when the caller omits it and is read on every call, so
// storing a new config takes effect immediately.
func RegisterTools(s *mcp.Server, defaults *atomic.Pointer[config.ScrubConfig]) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "scrub_html",
		Description: "Remove line breaks from HTML outside <pre> blocks",
	}, scrubHandler(defaults))
}

func scrubHandler(defaults *atomic.Pointer[config.ScrubConfig]) mcp.ToolHandlerFor[ScrubInput, ScrubOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in ScrubInput) (*mcp.CallToolResult, ScrubOutput, error) {
		var prefix bool
		if d := defaults.Load(); d != nil {
			prefix = config.Enabled(d.PrefixTags)
		}
		if in.PrefixTags != nil {
			prefix = *in.PrefixTags
		}

		out, _, err := transform.String(scrubber.NewTransformer(scrubber.Options{PrefixTags: prefix}), in.HTML)
		if err != nil {
			return nil, ScrubOutput{}, fmt.Errorf("scrubbing html: %w", err)
		}
		return nil, ScrubOutput{HTML: out, Removed: len(in.HTML) - len(out)}, nil
	}
}
