// Package gin binds the payment gate to the Gin framework.
package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	t402 "github.com/t402-io/t402-go"
)

// Middleware gates matching routes behind the payment handshake. Place it
// before the protected handlers; unprotected routes pass through untouched.
func Middleware(gate *t402.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := gate.Router().Match(c.Request.Method, c.Request.URL.Path)
		if !ok || len(route.Options) == 0 {
			c.Next()
			return
		}

		reqCtx := &t402.RequestContext{
			Method:  c.Request.Method,
			Path:    c.Request.URL.Path,
			Headers: c.Request.Header,
			Query:   c.Request.URL.Query(),
			Raw:     c,
		}
		headers := t402.NewHeaders()
		for name, values := range c.Request.Header {
			if len(values) > 0 {
				headers.Set(name, values[0])
			}
		}

		result, err := gate.ProcessRequest(c.Request.Context(), route, reqCtx, resourceURL(c), headers, func(ctx context.Context, buf *t402.ResponseBuffer) error {
			original := c.Writer
			writer := &responseWriter{ResponseWriter: original, buf: buf}
			c.Writer = writer
			c.Next()
			writer.flushHeaders()
			c.Writer = original
			return nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		for name, value := range result.Headers {
			c.Writer.Header().Set(name, value)
		}
		c.Writer.WriteHeader(result.Status)
		c.Writer.Write(result.Body)
		c.Abort()
	}
}

func resourceURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}

// responseWriter captures the downstream handlers' writes into the gate's
// buffer instead of the real connection.
type responseWriter struct {
	gin.ResponseWriter
	buf         *t402.ResponseBuffer
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.buf.WriteHeader(code)
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.buf.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *responseWriter) Status() int {
	if w.wroteHeader {
		return w.statusCode
	}
	return w.ResponseWriter.Status()
}

func (w *responseWriter) Written() bool { return w.wroteHeader }

func (w *responseWriter) WriteHeaderNow() {}

func (w *responseWriter) Size() int { return len(w.buf.Body()) }

// flushHeaders copies headers the handler set through gin into the buffer.
func (w *responseWriter) flushHeaders() {
	for name, values := range w.ResponseWriter.Header() {
		if len(values) > 0 {
			w.buf.Header().Set(name, values[0])
		}
	}
}
