package data

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	ContentTypeTextPlain   = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

// contentTypes pins the types most often stored and served from a backend,
// independent of the host's mime database.
var contentTypes = map[string]string{
	".txt":  ContentTypeTextPlain,
	".log":  ContentTypeTextPlain,
	".html": "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".ts":   "video/mp2t",
	".m3u8": "application/vnd.apple.mpegurl",
}

// ContentTypeOf returns the MIME type for the extension of name.
// Unknown extensions fall back to application/octet-stream.
func ContentTypeOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ContentTypeOctetStream
	}

	if contentType, exists := contentTypes[ext]; exists {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	return ContentTypeOctetStream
}
