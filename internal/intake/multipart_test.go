package intake

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
)

func TestParseMultipart_LFLineEndings(t *testing.T) {
	raw := strings.Join([]string{
		"--XyZ",
		`Content-Disposition: form-data; name="name"`,
		"",
		"Ada",
		"--XyZ",
		`Content-Disposition: form-data; name="photo"; filename="me.png"`,
		"Content-Type: image/png",
		"",
		"PNGDATA",
		"--XyZ--",
		"",
	}, "\n")

	form, err := ParseMultipart([]byte(raw), "XyZ", DefaultLimits())
	if err != nil {
		t.Fatalf("ParseMultipart: %v", err)
	}
	if got := form.Values.Get("name"); got != "Ada" {
		t.Fatalf("name = %q", got)
	}
	if len(form.Files) != 1 || form.Files[0].Filename != "me.png" || string(form.Files[0].Data) != "PNGDATA" {
		t.Fatalf("files = %+v", form.Files)
	}
}

func TestParseMultipart_PreservesBinaryPayload(t *testing.T) {
	payload := []byte{0x00, 0xff, '\r', '\n', '\r', '\n', 0x10, '-', '-'}
	var buf bytes.Buffer
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"f\"; filename=\"x.bin\"\r\nContent-Type: application/octet-stream\r\n\r\n")
	buf.Write(payload)
	buf.WriteString("\r\n--b--\r\n")

	form, err := ParseMultipart(buf.Bytes(), "b", DefaultLimits())
	if err != nil {
		t.Fatalf("ParseMultipart: %v", err)
	}
	if len(form.Files) != 1 || !bytes.Equal(form.Files[0].Data, payload) {
		t.Fatalf("files = %+v", form.Files)
	}
}

func TestParseMultipart_TooManyFiles(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"f\"; filename=\"a.txt\"\r\n\r\nx\r\n")
	}
	buf.WriteString("--b--\r\n")

	_, err := ParseMultipart(buf.Bytes(), "b", Limits{MaxBodyBytes: 1 << 20, MaxFiles: 2})
	wantStatus(t, err, http.StatusRequestEntityTooLarge)
}

func TestParseMultipart_BodyTooLarge(t *testing.T) {
	raw := bytes.Repeat([]byte("x"), 64)
	_, err := ParseMultipart(raw, "b", Limits{MaxBodyBytes: 32, MaxFiles: 10})
	wantStatus(t, err, http.StatusRequestEntityTooLarge)
}

func TestParseMultipart_SkipsEmptyFileInputsAndNamelessParts(t *testing.T) {
	raw := "--b\r\nContent-Disposition: form-data; name=\"f\"; filename=\"\"\r\n\r\n\r\n" +
		"--b\r\nContent-Disposition: form-data\r\n\r\norphan\r\n" +
		"--b\r\nContent-Disposition: form-data; name=\"ok\"\r\n\r\nyes\r\n--b--\r\n"
	form, err := ParseMultipart([]byte(raw), "b", DefaultLimits())
	if err != nil {
		t.Fatalf("ParseMultipart: %v", err)
	}
	if len(form.Files) != 0 || len(form.Values) != 1 || form.Values.Get("ok") != "yes" {
		t.Fatalf("form = %+v", form)
	}
}

func TestParseMultipart_NoBoundary(t *testing.T) {
	if _, err := ParseMultipart([]byte("whatever"), "", DefaultLimits()); err == nil {
		t.Fatal("expected error for empty boundary")
	}
	if _, err := ParseMultipart([]byte("no delimiters here"), "b", DefaultLimits()); err == nil {
		t.Fatal("expected error when no delimiter occurs")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd":     "passwd",
		`C:\Users\a\cv.docx`:   "cv.docx",
		"  spaced.txt ":        "spaced.txt",
		"bad\x00name\n.txt":    "badname.txt",
		"..":                   "file",
		"":                     "file",
		"cafe\u0301.txt":       "caf\u00e9.txt",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveContentType_SniffsOctetStream(t *testing.T) {
	if got := resolveContentType("application/octet-stream", pdfBytes); got != "application/pdf" {
		t.Fatalf("sniffed = %q", got)
	}
	if got := resolveContentType("image/png; name=x", []byte("x")); got != "image/png" {
		t.Fatalf("declared = %q", got)
	}
}
