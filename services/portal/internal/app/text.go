package app

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const maxStoredNameBytes = 120

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentTypeFor returns the MIME type served for a stored file extension.
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// plainText strips markup and collapses whitespace. Script and style bodies
// are dropped entirely.
func plainText(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func isRawTextTag(name []byte) bool {
	return bytes.Equal(name, []byte("script")) || bytes.Equal(name, []byte("style"))
}

// baseFilename returns the last element of a client supplied path, accepting
// both slash styles.
func baseFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// sanitizeFilename keeps ASCII letters, digits, dot, dash and underscore so the
// name is safe inside an object key. The extension survives truncation.
func sanitizeFilename(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range baseFilename(name) {
		ok := r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_')
		if !ok {
			if lastUnderscore {
				continue
			}
			r = '_'
		}
		lastUnderscore = r == '_'
		b.WriteRune(r)
	}
	out := strings.TrimRight(strings.Trim(b.String(), "_"), ".")
	if len(out) > maxStoredNameBytes {
		ext := path.Ext(out)
		if len(ext) >= maxStoredNameBytes {
			ext = ""
		}
		out = out[:maxStoredNameBytes-len(ext)] + ext
	}
	if out == "" || strings.HasPrefix(out, ".") {
		out = "file" + out
	}
	return out
}

func documentKey(teamID int64, now time.Time, filename string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("documents/team%d/%s_%s_%s", teamID, now.UTC().Format("20060102_150405"), id[:8], sanitizeFilename(filename))
}

func logoKey(teamID int64, ext string) string {
	return fmt.Sprintf("logos/team%d/%s%s", teamID, uuid.NewString(), ext)
}

// pdfPageCount returns the number of pages, or 0 when data cannot be parsed.
// The parser panics on some malformed inputs.
func pdfPageCount(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

// ReadUpload reads at most limit+1 bytes from r: enough for SubmitDocument
// and UploadLogo to notice oversized input without buffering all of it.
func ReadUpload(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit+1))
}
