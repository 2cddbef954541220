package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.writer.Write([]byte(s))
}

func (g *gzipWriter) WriteHeader(code int) {
	g.Header().Del("Content-Length")
	g.ResponseWriter.WriteHeader(code)
}

// Gzip compresses responses for clients that accept it. Websocket upgrades
// and the paths in skip are passed through untouched.
func Gzip(level int, skip ...string) gin.HandlerFunc {
	excluded := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		excluded[p] = struct{}{}
	}
	pool := sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	}

	return func(c *gin.Context) {
		if !shouldCompress(c.Request) {
			c.Next()
			return
		}
		if _, ok := excluded[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, writer: gz}

		defer func() {
			switch c.Writer.Status() {
			case http.StatusNoContent, http.StatusNotModified:
				c.Writer.Header().Del("Content-Encoding")
				gz.Reset(io.Discard)
			}
			gz.Close()
			gz.Reset(io.Discard)
			pool.Put(gz)
		}()
		c.Next()
	}
}

func shouldCompress(r *http.Request) bool {
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	if strings.EqualFold(r.Header.Get("Connection"), "upgrade") || r.Header.Get("Upgrade") != "" {
		return false
	}
	return true
}
