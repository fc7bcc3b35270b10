package domain

// Request describes one backend call for the request executor. Authenticated
// requests get the current access token attached; unauthenticated ones (token
// exchange, signed-URL downloads) go out bare.
type Request struct {
	Method        string
	Path          string
	Query         map[string]string
	Body          []byte
	Authenticated bool
}

// Response is the raw outcome of a successful backend call.
type Response struct {
	Status int
	Header map[string][]string
	Body   []byte
}
