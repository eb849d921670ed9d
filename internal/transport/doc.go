// Package transport performs the outbound HTTP calls used by servicecall:
// buffered GET/POST/PUT requests, streamed file uploads and streamed file
// downloads.
//
// Transport-level failures (DNS, connection, timeout) never surface as Go
// errors from the buffered calls. They are folded into a Result with
// StatusCode -1 so callers always get a uniform value back:
//
//	c := transport.New(transport.WithTimeout(30 * time.Second))
//	res := c.Get(ctx, "https://example.com/api", map[string]string{"Accept": "application/json"})
//	if !res.Success() {
//	  // res.StatusCode, res.Status describe the failure
//	}
//
// Only failures of the local filesystem (opening the file to upload,
// creating the download destination) are returned as errors, wrapping
// ErrLocalIO.
package transport
