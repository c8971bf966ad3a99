package icloud

import (
	"context"
	"net/http"
)

const userAgent = "loancal/1.0"

type callKey struct{}

// callInfo carries a write precondition to the transport and the response
// status back to the caller. The caldav client exposes neither.
type callInfo struct {
	header string
	value  string
	status int
}

func withCall(ctx context.Context, header, value string) (context.Context, *callInfo) {
	info := &callInfo{header: header, value: value}
	return context.WithValue(ctx, callKey{}, info), info
}

// failedStatus returns the last non-success status seen, 0 if none.
func (c *callInfo) failedStatus() int {
	if c == nil || c.status < 300 {
		return 0
	}
	return c.status
}

// customTransport adds the user agent and any precondition found in the
// request context, and records the response status.
type customTransport struct {
	Transport http.RoundTripper
}

// RoundTrip adds required headers to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	info, _ := req.Context().Value(callKey{}).(*callInfo)

	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if info != nil && info.header != "" && req.Method == http.MethodPut {
		req.Header.Set(info.header, info.value)
	}

	resp, err := t.Transport.RoundTrip(req)
	if err == nil && info != nil {
		info.status = resp.StatusCode
	}
	return resp, err
}
