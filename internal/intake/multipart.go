package intake

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/znz-systems/formdrop/internal/apierr"
)

var (
	errNoBoundary = errors.New("multipart boundary missing")
	errNoParts    = errors.New("no multipart parts found")

	dispositionName     = regexp.MustCompile(`(?i)\bname="([^"]*)"`)
	dispositionFilename = regexp.MustCompile(`(?i)\bfilename="([^"]*)"`)
)

// ParseMultipart is a byte-level multipart/form-data parser used when the
// standard reader rejects a body, typically because of a missing final
// delimiter or bare LF line endings. Payloads stay as raw bytes; only the
// header block of each part is decoded as text.
func ParseMultipart(raw []byte, boundary string, limits Limits) (*Form, error) {
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	if int64(len(raw)) > limits.MaxBodyBytes {
		return nil, apierr.TooLarge(fmt.Sprintf("Request body too large. Maximum size is %dMB", limits.MaxBodyBytes>>20))
	}
	if boundary == "" {
		return nil, errNoBoundary
	}

	delim := []byte("--" + boundary)
	chunks := splitOnDelimiter(raw, delim)
	if len(chunks) == 0 {
		return nil, errNoParts
	}

	form := &Form{Values: url.Values{}}
	for _, chunk := range chunks {
		headerBlock, body, ok := splitPart(chunk)
		if !ok {
			continue
		}
		name, filename, hasFilename, contentType := parsePartHeaders(headerBlock)
		if name == "" {
			continue
		}
		if hasFilename {
			if filename == "" {
				continue
			}
			if len(form.Files) >= limits.MaxFiles {
				return nil, apierr.TooLarge(fmt.Sprintf("Too many files. Maximum is %d files per request", limits.MaxFiles))
			}
			data := make([]byte, len(body))
			copy(data, body)
			form.Files = append(form.Files, newFile(name, filename, contentType, data))
			continue
		}
		form.Values.Add(name, string(body))
	}
	return form, nil
}

// splitOnDelimiter returns the byte ranges between delimiter occurrences,
// stopping at the closing delimiter (delim followed by "--").
func splitOnDelimiter(raw, delim []byte) [][]byte {
	start := bytes.Index(raw, delim)
	if start < 0 {
		return nil
	}
	var chunks [][]byte
	pos := start + len(delim)
	for pos <= len(raw) {
		if bytes.HasPrefix(raw[pos:], []byte("--")) {
			break
		}
		next := bytes.Index(raw[pos:], delim)
		if next < 0 {
			chunks = append(chunks, raw[pos:])
			break
		}
		chunks = append(chunks, raw[pos:pos+next])
		pos += next + len(delim)
	}
	return chunks
}

// splitPart separates a part's header block from its payload. The line
// break after the delimiter and the one before the next delimiter are
// removed.
func splitPart(chunk []byte) ([]byte, []byte, bool) {
	chunk = trimLeadingNewline(chunk)

	sep := []byte("\r\n\r\n")
	i := bytes.Index(chunk, sep)
	if i < 0 {
		sep = []byte("\n\n")
		i = bytes.Index(chunk, sep)
	}
	if i < 0 {
		return nil, nil, false
	}
	header := chunk[:i]
	body := chunk[i+len(sep):]
	switch {
	case bytes.HasSuffix(body, []byte("\r\n")):
		body = body[:len(body)-2]
	case bytes.HasSuffix(body, []byte("\n")):
		body = body[:len(body)-1]
	}
	return header, body, true
}

func trimLeadingNewline(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("\r\n")) {
		return b[2:]
	}
	if bytes.HasPrefix(b, []byte("\n")) {
		return b[1:]
	}
	return b
}

func parsePartHeaders(block []byte) (name, filename string, hasFilename bool, contentType string) {
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "content-disposition":
			name, filename, hasFilename = parseDisposition(value)
		case "content-type":
			contentType = value
		}
	}
	return name, filename, hasFilename, contentType
}

func parseDisposition(value string) (name, filename string, hasFilename bool) {
	if _, params, err := mime.ParseMediaType(value); err == nil {
		filename, hasFilename = params["filename"]
		return params["name"], filename, hasFilename
	}
	if m := dispositionName.FindStringSubmatch(value); m != nil {
		name = m[1]
	}
	if m := dispositionFilename.FindStringSubmatch(value); m != nil {
		filename, hasFilename = m[1], true
	}
	return name, filename, hasFilename
}
