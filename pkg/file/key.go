package file

import (
	"mime"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewObjectKey builds a unique, time-sortable key under prefix:
// "<prefix>/<ulid><ext>".
func NewObjectKey(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(strings.Trim(prefix, "/"), strings.ToLower(ulid.Make().String())+ext)
}

// ExtensionFor picks a file extension for contentType, falling back to the
// extension of the source URL path.
func ExtensionFor(contentType, sourceURL string) string {
	switch mt, _, _ := mime.ParseMediaType(contentType); mt {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}

	if i := strings.IndexAny(sourceURL, "?#"); i >= 0 {
		sourceURL = sourceURL[:i]
	}
	ext := strings.ToLower(path.Ext(sourceURL))
	if len(ext) > 1 && len(ext) <= 5 {
		return ext
	}
	return ""
}
