package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/znz-systems/formdrop/internal/apierr"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
)

const (
	// DefaultMaxBodyBytes and DefaultMaxFiles apply to every request,
	// ahead of any per-endpoint upload limits.
	DefaultMaxBodyBytes = 50 << 20
	DefaultMaxFiles     = 10
)

// Limits are the hard caps applied while decoding.
type Limits struct {
	MaxBodyBytes int64
	MaxFiles     int
}

// DefaultLimits returns the service-wide decode caps.
func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: DefaultMaxBodyBytes, MaxFiles: DefaultMaxFiles}
}

// File is an uploaded file held in memory.
type File struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

func (f File) Size() int64 { return int64(len(f.Data)) }

// Form is the flat result of parsing a form body, before unflattening.
type Form struct {
	Values url.Values
	Files  []File
}

// Body is a decoded submission.
type Body struct {
	Data  jsonvalue.Value
	Files []File
}

var errNativeParse = errors.New("native form parse failed")

// Decode reads and decodes the request body according to its Content-Type.
// JSON bodies are parsed directly. Anything else is tried as multipart or
// urlencoded form data first; multipart bodies the standard reader rejects
// are retried with ParseMultipart, and other bodies fall back to JSON.
func Decode(r *http.Request, uploadsEnabled bool, limits Limits) (*Body, error) {
	raw, err := readBody(r.Body, limits.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	mediaType, params := parseContentType(r.Header.Get("Content-Type"))

	if isJSON(mediaType) {
		data, err := jsonvalue.Parse(raw)
		if err != nil {
			return nil, apierr.BadRequest("Invalid JSON in request body")
		}
		return &Body{Data: data}, nil
	}

	form, err := decodeNative(mediaType, params, raw)
	if err != nil {
		switch mediaType {
		case "multipart/form-data":
			boundary := params["boundary"]
			if boundary == "" {
				boundary = sniffBoundary(raw)
			}
			form, err = ParseMultipart(raw, boundary, limits)
			if err != nil {
				var apiErr *apierr.Error
				if errors.As(err, &apiErr) {
					return nil, apiErr
				}
				return nil, apierr.BadRequest("Failed to parse multipart form data")
			}
		default:
			data, jsonErr := jsonvalue.Parse(raw)
			if jsonErr != nil {
				return nil, apierr.BadRequest("Unable to parse request body")
			}
			return &Body{Data: data}, nil
		}
	}

	if len(form.Files) > 0 && !uploadsEnabled {
		return nil, apierr.BadRequest("File uploads are not enabled for this endpoint")
	}
	if limits.MaxFiles > 0 && len(form.Files) > limits.MaxFiles {
		return nil, apierr.TooLarge(fmt.Sprintf("Too many files. Maximum is %d files per request", limits.MaxFiles))
	}
	return &Body{Data: jsonvalue.Unflatten(form.Values), Files: form.Files}, nil
}

func readBody(body io.Reader, max int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	raw, err := io.ReadAll(io.LimitReader(body, max+1))
	if err != nil {
		return nil, apierr.BadRequest("Failed to read request body")
	}
	if int64(len(raw)) > max {
		return nil, apierr.TooLarge(fmt.Sprintf("Request body too large. Maximum size is %dMB", max>>20))
	}
	return raw, nil
}

func parseContentType(header string) (string, map[string]string) {
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType, _, _ = strings.Cut(header, ";")
		return strings.ToLower(strings.TrimSpace(mediaType)), map[string]string{}
	}
	return mediaType, params
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeNative(mediaType string, params map[string]string, raw []byte) (*Form, error) {
	switch mediaType {
	case "multipart/form-data":
		if params["boundary"] == "" {
			return nil, errNativeParse
		}
		return readMultipart(raw, params["boundary"])
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, errNativeParse
		}
		return &Form{Values: values}, nil
	default:
		return nil, errNativeParse
	}
}

func readMultipart(raw []byte, boundary string) (*Form, error) {
	mr := multipart.NewReader(bytes.NewReader(raw), boundary)
	form := &Form{Values: url.Values{}}
	parts := 0
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errNativeParse
		}
		parts++

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, errNativeParse
		}

		name := part.FormName()
		if name == "" {
			continue
		}
		if filename := part.FileName(); filename != "" {
			form.Files = append(form.Files, newFile(name, filename, part.Header.Get("Content-Type"), data))
			continue
		}
		if _, hasFilename := dispositionParam(part, "filename"); hasFilename {
			// Empty file input.
			continue
		}
		form.Values.Add(name, string(data))
	}
	if parts == 0 {
		return nil, errNativeParse
	}
	return form, nil
}

func dispositionParam(part *multipart.Part, key string) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	v, ok := params[key]
	return v, ok
}

// sniffBoundary recovers the boundary from the first delimiter line when the
// Content-Type header omitted it.
func sniffBoundary(raw []byte) string {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte("--")) || len(line) < 3 {
		return ""
	}
	return string(line[2:])
}
