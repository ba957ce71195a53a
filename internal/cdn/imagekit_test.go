package cdn

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestImageKit(server *httptest.Server) *ImageKitClient {
	c := NewImageKitClient("private_key")
	c.uploadURL = server.URL + "/api/v1/files/upload"
	c.httpClient = server.Client()
	return c
}

func TestImageKitUpload_Bytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "private_key" || pass != "" {
			t.Errorf("expected basic auth with private key, got %q %q", user, pass)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("fileName"); got != "appraiser-a1.png" {
			t.Errorf("expected fileName appraiser-a1.png, got %q", got)
		}
		if got := r.FormValue("useUniqueFileName"); got != "false" {
			t.Errorf("expected useUniqueFileName=false, got %q", got)
		}
		if got := r.FormValue("overwriteFile"); got != "true" {
			t.Errorf("expected overwriteFile=true, got %q", got)
		}
		if got := r.FormValue("folder"); got != "/profiles" {
			t.Errorf("expected folder /profiles, got %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("expected file part: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "PNGDATA" {
			t.Errorf("unexpected file content %q", data)
		}
		w.Write([]byte(`{"fileId":"f1","url":"https://ik.imagekit.io/x/profiles/appraiser-a1.png","size":7}`))
	}))
	defer server.Close()

	res, err := newTestImageKit(server).Upload(context.Background(),
		Source{Bytes: []byte("PNGDATA"), MIMEType: "image/png"},
		Options{FileName: "appraiser-a1.png", Folder: "/profiles", Overwrite: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FileID != "f1" || res.SizeBytes != 7 || !strings.HasSuffix(res.URL, "appraiser-a1.png") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestImageKitUpload_Base64AndURL(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		seen = append(seen, r.FormValue("file"))
		w.Write([]byte(`{"fileId":"f","url":"https://cdn/x.png"}`))
	}))
	defer server.Close()

	c := newTestImageKit(server)
	if _, err := c.Upload(context.Background(), Source{Base64: "QUJD", MIMEType: "image/png"}, Options{FileName: "x.png"}); err != nil {
		t.Fatalf("base64 upload: %v", err)
	}
	if _, err := c.Upload(context.Background(), Source{URL: "https://provider/x.png"}, Options{FileName: "x.png"}); err != nil {
		t.Fatalf("url upload: %v", err)
	}
	if len(seen) != 2 || seen[0] != "data:image/png;base64,QUJD" || seen[1] != "https://provider/x.png" {
		t.Errorf("unexpected file fields %v", seen)
	}
}

func TestImageKitUpload_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Your account cannot be authenticated.","help":""}`))
	}))
	defer server.Close()

	_, err := newTestImageKit(server).Upload(context.Background(), Source{Bytes: []byte("x")}, Options{FileName: "x.png"})
	if err == nil || !strings.Contains(err.Error(), "cannot be authenticated") {
		t.Errorf("expected API message in error, got %v", err)
	}
}

func TestImageKitUpload_EmptySource(t *testing.T) {
	c := NewImageKitClient("k")
	if _, err := c.Upload(context.Background(), Source{}, Options{FileName: "x.png"}); err == nil {
		t.Error("expected error for empty source")
	}
}
