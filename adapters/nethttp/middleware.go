// Package nethttp binds the payment gate and client engine to the standard
// library HTTP stack: a middleware that gates http.Handlers and a
// RoundTripper that pays 402 challenges transparently.
package nethttp

import (
	"context"
	"net/http"

	t402 "github.com/t402-io/t402-go"
)

// Middleware wraps next with the payment gate. Unprotected routes pass
// through untouched; protected routes run the full handshake with next's
// output buffered until settlement completes.
func Middleware(gate *t402.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := gate.Router().Match(r.Method, r.URL.Path)
			if !ok || len(route.Options) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqCtx := &t402.RequestContext{
				Method:  r.Method,
				Path:    r.URL.Path,
				Headers: r.Header,
				Query:   r.URL.Query(),
				Raw:     r,
			}
			headers := t402.NewHeaders()
			for name, values := range r.Header {
				if len(values) > 0 {
					headers.Set(name, values[0])
				}
			}

			result, err := gate.ProcessRequest(r.Context(), route, reqCtx, resourceURL(r), headers, func(ctx context.Context, buf *t402.ResponseBuffer) error {
				bw := &bufferedWriter{buf: buf, header: make(http.Header)}
				next.ServeHTTP(bw, r.WithContext(ctx))
				bw.flushHeaders()
				return nil
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			for name, value := range result.Headers {
				w.Header().Set(name, value)
			}
			w.WriteHeader(result.Status)
			w.Write(result.Body)
		})
	}
}

func resourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

// bufferedWriter adapts the gate's ResponseBuffer to http.ResponseWriter so
// the downstream handler writes into the buffer, never the real response.
type bufferedWriter struct {
	buf         *t402.ResponseBuffer
	header      http.Header
	wroteHeader bool
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.buf.WriteHeader(code)
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.buf.Write(p)
}

// flushHeaders copies the handler's headers into the buffer once the
// handler has finished; the gate decides whether they ever reach the wire.
func (w *bufferedWriter) flushHeaders() {
	for name, values := range w.header {
		if len(values) > 0 {
			w.buf.Header().Set(name, values[0])
		}
	}
}
