package intake

import (
	"mime"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"
)

func newFile(field, filename, contentType string, data []byte) File {
	return File{
		FieldName:   field,
		Filename:    SanitizeFilename(filename),
		ContentType: resolveContentType(contentType, data),
		Data:        data,
	}
}

// resolveContentType keeps a declared type and sniffs one from the payload
// when the client sent none or only application/octet-stream.
func resolveContentType(declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			declared = mediaType
		}
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	detected := mimetype.Detect(data).String()
	if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
		return mediaType
	}
	return detected
}

// SanitizeFilename normalises a client-supplied filename to NFC and strips
// directory components and control characters.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
