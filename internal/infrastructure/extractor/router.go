package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

// Router picks an extractor by file extension and falls back to the default
// for anything it does not recognize.
type Router struct {
	byExt    map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func NewRouter(fallback ports.TextExtractor) *Router {
	return &Router{byExt: make(map[string]ports.TextExtractor), fallback: fallback}
}

// Register binds extensions (with or without the leading dot) to ex.
func (r *Router) Register(ex ports.TextExtractor, exts ...string) *Router {
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.byExt[ext] = ex
	}
	return r
}

func (r *Router) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if ex, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return ex.Extract(ctx, filename, data)
	}
	return r.fallback.Extract(ctx, filename, data)
}
