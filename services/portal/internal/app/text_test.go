package app

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"plain":                            "plain",
		"  many   spaces\n\tand lines ":    "many spaces and lines",
		"<em>bold</em>move":                "bold move",
		"a<br/>b":                          "a b",
		"<style>p{}</style>visible":        "visible",
		"&lt;tag&gt; &eacute;levage":       "<tag> élevage",
		"<img src=x onerror=alert(1)>":     "",
		"Pêche <span>durable</span> &amp;": "Pêche durable &",
	}
	for in, want := range cases {
		if got := plainText(in); got != want {
			t.Fatalf("plainText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":                  "report.pdf",
		"Rapport Final.PDF":           "Rapport_Final.PDF",
		"../../etc/passwd":            "passwd",
		`C:\Temp\évaluation (1).docx`: "valuation_1_.docx",
		"...":                         "file",
		".pdf":                        "file.pdf",
		"":                            "file",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	long := strings.Repeat("a", 300) + ".pptx"
	got := sanitizeFilename(long)
	if len(got) != maxStoredNameBytes || !strings.HasSuffix(got, ".pptx") {
		t.Fatalf("long name = %q (%d)", got, len(got))
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("logos/team1/x.PNG"); got != "image/png" {
		t.Fatalf("png = %q", got)
	}
	if got := ContentTypeFor("a.pptx"); !strings.Contains(got, "presentationml") {
		t.Fatalf("pptx = %q", got)
	}
	if got := ContentTypeFor("a.bin"); got != "application/octet-stream" {
		t.Fatalf("bin = %q", got)
	}
}

func TestPDFPageCount(t *testing.T) {
	if got := pdfPageCount([]byte("not a pdf")); got != 0 {
		t.Fatalf("garbage page count = %d", got)
	}
	if got := pdfPageCount([]byte("%PDF-1.4\n%%EOF")); got != 0 {
		t.Fatalf("truncated page count = %d", got)
	}
	if got := pdfPageCount(minimalPDF(3)); got != 3 {
		t.Fatalf("page count = %d, want 3", got)
	}
}

// minimalPDF builds a valid PDF with n empty pages and a correct xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
