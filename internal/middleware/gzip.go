package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"
	"sync"
)

// MinGzipSize is the smallest body worth compressing.
const MinGzipSize = 500

var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

type gzipMode int

const (
	gzipBuffering gzipMode = iota
	gzipActive
	gzipBypass
)

// gzipResponseWriter holds the first bytes of a body back until it knows
// whether the response is large enough to compress.
type gzipResponseWriter struct {
	http.ResponseWriter
	minSize int
	status  int
	buf     []byte
	mode    gzipMode
	gz      *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *gzipResponseWriter) Write(p []byte) (int, error) {
	switch w.mode {
	case gzipActive:
		return w.gz.Write(p)
	case gzipBypass:
		return w.ResponseWriter.Write(p)
	}

	w.buf = append(w.buf, p...)
	if len(w.buf) < w.minSize {
		return len(p), nil
	}
	if err := w.decide(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// decide picks compression or pass-through and releases the buffer.
func (w *gzipResponseWriter) decide() error {
	h := w.Header()
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if h.Get("Content-Type") == "" && len(w.buf) > 0 {
		h.Set("Content-Type", http.DetectContentType(w.buf))
	}

	compress := len(w.buf) >= w.minSize &&
		h.Get("Content-Encoding") == "" &&
		compressibleType(h.Get("Content-Type"))

	buf := w.buf
	w.buf = nil
	if !compress {
		w.mode = gzipBypass
		w.ResponseWriter.WriteHeader(w.status)
		_, err := w.ResponseWriter.Write(buf)
		return err
	}

	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)

	w.gz = gzipPool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	w.mode = gzipActive
	_, err := w.gz.Write(buf)
	return err
}

func (w *gzipResponseWriter) Flush() {
	if w.mode == gzipBuffering {
		_ = w.decide()
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *gzipResponseWriter) close() error {
	switch w.mode {
	case gzipActive:
		err := w.gz.Close()
		gzipPool.Put(w.gz)
		w.gz = nil
		return err
	case gzipBuffering:
		if w.buf == nil && w.status == 0 {
			return nil
		}
		w.mode = gzipBypass
		if w.status == 0 {
			w.status = http.StatusOK
		}
		w.ResponseWriter.WriteHeader(w.status)
		_, err := w.ResponseWriter.Write(w.buf)
		return err
	}
	return nil
}

// compressibleType skips media that is already compressed.
func compressibleType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, prefix := range []string{"image/", "video/", "audio/", "application/zip", "application/gzip"} {
		if strings.HasPrefix(ct, prefix) && !strings.HasPrefix(ct, "image/svg") {
			return false
		}
	}
	return true
}

// WithGzip compresses responses of at least minSize bytes for clients
// that accept gzip.
func WithGzip(minSize int) Middleware {
	if minSize <= 0 {
		minSize = MinGzipSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			if r.Method == http.MethodHead || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gw := &gzipResponseWriter{ResponseWriter: w, minSize: minSize}
			defer gw.close()
			next.ServeHTTP(gw, r)
		})
	}
}
