package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AllowedContentTypes lists what the order archive accepts, by extension.
var AllowedContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
}

// ContentTypeFor returns the MIME type of an archivable file.
func ContentTypeFor(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	ct, ok := AllowedContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("file type %q is not archivable", ext)
	}
	return ct, nil
}
