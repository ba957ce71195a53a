package provider

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

// DetectMIME sniffs the image type of data and confirms the header decodes.
func DetectMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	sniffed := http.DetectContentType(data)
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("payload is not a decodable image (sniffed %s): %w", sniffed, err)
	}
	if mime, ok := formatMIME[format]; ok {
		return mime, nil
	}
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, nil
	}
	return "", fmt.Errorf("unsupported image format %q", format)
}

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Extension maps an image MIME type to a file extension.
func Extension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// newArtifact detects the MIME type and assembles an Artifact, classifying
// undecodable payloads as Fatal.
func newArtifact(data []byte, sourceURL string) (*Artifact, error) {
	mime, err := DetectMIME(data)
	if err != nil {
		return nil, &Error{Kind: Fatal, Message: err.Error(), Err: err}
	}
	return &Artifact{Bytes: data, MIMEType: mime, SourceURL: sourceURL}, nil
}
