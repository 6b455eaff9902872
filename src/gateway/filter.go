package gateway

import (
	"net/http"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/scrubber"
)

// scrubResponse returns the origin-response hook for a location with
// noNewlines enabled. Eligible responses lose their length metadata and
// get a body that is scrubbed as the proxy copies it to the client.
func scrubResponse(opts scrubber.Options) func(*http.Response) error {
	return func(resp *http.Response) error {
		meta := scrubber.ResponseMeta{
			Status:          resp.StatusCode,
			HeaderOnly:      resp.Request != nil && resp.Request.Method == http.MethodHead,
			ContentType:     resp.Header.Get("Content-Type"),
			ContentEncoding: resp.Header.Get("Content-Encoding"),
		}
		if !scrubber.Eligible(meta) {
			return nil
		}

		resp.Header.Del("Content-Length")
		resp.Header.Del("Accept-Ranges")
		resp.ContentLength = -1
		resp.Body = scrubber.NewReader(resp.Body, scrubber.NewContext(opts))
		return nil
	}
}
