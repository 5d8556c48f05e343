package mcp

import "net/http"

// a simple wrapper for http.RoundTripper to do something before and after
// RoundTrip.  The default BeforeReq hook stamps every request with the fixed
// MCP headers: the server may answer either JSON or an event stream, and the
// protocol version header is mandatory.
type transport struct {
	tr        http.RoundTripper
	BeforeReq func(req *http.Request)
	AfterReq  func(resp *http.Response, req *http.Request)
}

func newTransport(tr http.RoundTripper) *transport {
	t := &transport{}
	if tr == nil {
		tr = http.DefaultTransport
	}
	t.tr = tr
	t.BeforeReq = func(req *http.Request) {
		req.Header.Set("Accept", "application/json, text/event-stream")
		req.Header.Set("MCP-Protocol-Version", ProtocolVersion)
	}
	return t
}

func (t *transport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	if t.BeforeReq != nil {
		t.BeforeReq(req)
	}
	resp, err = t.tr.RoundTrip(req)
	if err != nil {
		return
	}
	if t.AfterReq != nil {
		t.AfterReq(resp, req)
	}
	return
}
