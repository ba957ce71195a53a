package provider

import "testing"

func TestDetectMIME_PNG(t *testing.T) {
	mime, err := DetectMIME(testPNG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("expected image/png, got %s", mime)
	}
}

func TestDetectMIME_Rejects(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty": nil,
		"html":  []byte("<html><body>error</body></html>"),
		"json":  []byte(`{"status":"Ready"}`),
	} {
		if _, err := DetectMIME(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"image/png":                 ".png",
		"image/jpeg":                ".jpg",
		"image/webp":                ".webp",
		"image/gif":                 ".gif",
		"IMAGE/JPEG; charset=utf-8": ".jpg",
		"":                          ".png",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q): expected %s, got %s", in, want, got)
		}
	}
}
