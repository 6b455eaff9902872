package scrubber

import (
	"net/http"
	"strings"
)

const htmlContentType = "text/html"

// ResponseMeta is the subset of a response the eligibility rule reads.
type ResponseMeta struct {
	Status          int
	HeaderOnly      bool
	ContentType     string
	ContentEncoding string
}

// Eligible reports whether a response body should be scrubbed: status
// 200, 403 or 404, a body is sent, the content type is text/html and the
// body is not content-encoded.
func Eligible(m ResponseMeta) bool {
	switch m.Status {
	case http.StatusOK, http.StatusForbidden, http.StatusNotFound:
	default:
		return false
	}
	if m.HeaderOnly || m.ContentEncoding != "" {
		return false
	}
	if len(m.ContentType) < len(htmlContentType) {
		return false
	}
	return strings.EqualFold(m.ContentType[:len(htmlContentType)], htmlContentType)
}
