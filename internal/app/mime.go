package app

import (
	"log"
	"mime"

	"github.com/esgari/balance360/internal/export"
)

func init() {
	ensureMimeType(".xlsx", export.XLSXContentType)
	ensureMimeType(".csv", "text/csv; charset=utf-8")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
