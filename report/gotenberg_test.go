package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLPostsMultipartForm(t *testing.T) {
	var (
		html   string
		fields = map[string]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("files")
		require.NoError(t, err)
		raw, _ := io.ReadAll(f)
		html = string(raw)
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/").RenderHTML(context.Background(), "<h1>Invoice</h1>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Equal(t, "<h1>Invoice</h1>", html)
	assert.Equal(t, "8.27", fields["paperWidth"])
	assert.Equal(t, "true", fields["printBackground"])
	assert.NotContains(t, fields, "landscape")
}

func TestRenderHTMLSurfacesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithPageSetup(PageSetup{Landscape: true}))
	_, err := client.RenderHTML(context.Background(), "<p/>")
	require.ErrorIs(t, err, ErrConversion)
	assert.Contains(t, err.Error(), "chromium crashed")

	require.ErrorIs(t, client.Ping(context.Background()), ErrConversion)
}
