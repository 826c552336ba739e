package export

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/render"
)

const doc = `{
	"meta": {"title": "EIP-7702 vs EIP-3074: Account Abstraction", "author": "X", "created": "2025-01-01", "description": "d"},
	"eips": [7702, 3074],
	"sections": [{"type": "summary", "points": ["Set code <now>"]}]
}`

func mustParse(t *testing.T) *comparison.Comparison {
	t.Helper()
	c, err := comparison.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return c
}

type fakeStore struct {
	mu    sync.Mutex
	keys  []string
	putFn func(key string) (string, error)
}

func (f *fakeStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return f.putFn(key)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatHTML, false},
		{"HTML", FormatHTML, false},
		{"pdf", FormatPDF, false},
		{" docx ", FormatDOCX, false},
		{"odt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("error should wrap ErrUnsupportedFormat: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(render.New(nil))
	res, err := svc.Export(context.Background(), mustParse(t), FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	html := string(res.Data)
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Error("export should be a full document")
	}
	if !strings.Contains(html, "Set code &lt;now&gt;") {
		t.Error("summary point missing or unescaped")
	}
	if !strings.Contains(html, DefaultFooter) {
		t.Error("footer missing")
	}
	if res.Filename != "eip-7702-vs-eip-3074-account-abstraction.html" {
		t.Errorf("filename = %q", res.Filename)
	}
	if res.MimeType != "text/html; charset=utf-8" || res.URL != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestExportUsesConverters(t *testing.T) {
	var gotHTML string
	pdf := ConverterFunc(func(_ context.Context, html string) ([]byte, error) {
		gotHTML = html
		return []byte("%PDF-1.7"), nil
	})
	docx := ConverterFunc(func(context.Context, string) ([]byte, error) {
		return nil, ErrDOCXDependencyMissing
	})
	svc := NewService(render.New(nil), WithPDFConverter(pdf), WithDOCXConverter(docx), WithFooter("f"))

	res, err := svc.Export(context.Background(), mustParse(t), FormatPDF)
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if string(res.Data) != "%PDF-1.7" || res.MimeType != "application/pdf" {
		t.Errorf("pdf result = %+v", res)
	}
	if !strings.Contains(gotHTML, ">f</footer>") {
		t.Error("converter should receive the full page")
	}

	if _, err := svc.Export(context.Background(), mustParse(t), FormatDOCX); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Errorf("Export(docx) error = %v, want ErrDOCXDependencyMissing", err)
	}
	if _, err := svc.Export(context.Background(), mustParse(t), Format("odt")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Export(odt) error = %v", err)
	}
}

func TestExportUploadsToObjectStore(t *testing.T) {
	store := &fakeStore{putFn: func(key string) (string, error) {
		return "https://cdn.example/" + key, nil
	}}
	svc := NewService(render.New(nil), WithObjectStore(store))

	res, err := svc.Export(context.Background(), mustParse(t), FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	wantKey := ObjectKey("eip-7702-vs-eip-3074-account-abstraction", FormatHTML, res.Data)
	if len(store.keys) != 1 || store.keys[0] != wantKey {
		t.Fatalf("keys = %v, want [%s]", store.keys, wantKey)
	}
	if res.URL != "https://cdn.example/"+wantKey {
		t.Errorf("URL = %q", res.URL)
	}

	store.putFn = func(string) (string, error) { return "", errors.New("bucket gone") }
	res, err = svc.Export(context.Background(), mustParse(t), FormatHTML)
	if err != nil {
		t.Fatalf("upload failure should not fail export: %v", err)
	}
	if res.URL != "" || len(res.Data) == 0 {
		t.Errorf("result after failed upload = %+v", res)
	}
}

func TestObjectKey(t *testing.T) {
	a := ObjectKey("doc", FormatPDF, []byte("one"))
	b := ObjectKey("doc", FormatPDF, []byte("two"))
	if a == b {
		t.Error("different content should produce different keys")
	}
	if a != ObjectKey("doc", FormatPDF, []byte("one")) {
		t.Error("keys should be deterministic")
	}
	if !strings.HasPrefix(a, "exports/doc-") || !strings.HasSuffix(a, ".pdf") || len(a) != len("exports/doc-")+16+len(".pdf") {
		t.Errorf("key = %q", a)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello-world"},
		{"My Document v1.2", "my-document-v1-2"},
		{"Special!@#$%Chars", "specialchars"},
		{"  --Pectra / Fusaka--  ", "pectra-fusaka"},
		{"", "comparison"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "very-long-title-that-exceeds-fifty-characters-limi"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			want := "data:text/html;charset=utf-8," + tt.expected
			if got := dataURL(tt.input); got != want {
				t.Errorf("dataURL(%q) = %q, want %q", tt.input, got, want)
			}
		})
	}
}

func TestMinioStorePut(t *testing.T) {
	var (
		mu          sync.Mutex
		putPath     string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			mu.Lock()
			putPath = r.URL.Path
			contentType = r.Header.Get("Content-Type")
			mu.Unlock()
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	defer srv.Close()

	store, err := NewMinioStore(MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "forkcast-exports",
	})
	if err != nil {
		t.Fatalf("NewMinioStore() error = %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket() error = %v", err)
	}

	url, err := store.Put(context.Background(), "exports/doc-abc.html", []byte("<html></html>"), "text/html")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if putPath != "/forkcast-exports/exports/doc-abc.html" {
		t.Errorf("PUT path = %q", putPath)
	}
	if contentType != "text/html" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if !strings.Contains(url, "/forkcast-exports/exports/doc-abc.html") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Errorf("presigned URL = %q", url)
	}
}
