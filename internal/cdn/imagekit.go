package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const imageKitUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

// ImageKitClient uploads through the ImageKit REST upload API.
type ImageKitClient struct {
	privateKey string
	uploadURL  string
	httpClient *http.Client
}

// NewImageKitClient creates a client authenticated with the account's private key.
func NewImageKitClient(privateKey string) *ImageKitClient {
	return &ImageKitClient{
		privateKey: privateKey,
		uploadURL:  imageKitUploadURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *ImageKitClient) Name() string { return "imagekit" }

type imageKitResponse struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
}

type imageKitError struct {
	Message string `json:"message"`
	Help    string `json:"help"`
}

// Upload posts src as multipart form data. Bytes go as a file part; base64
// and URL sources go as the "file" field value, which ImageKit accepts.
func (c *ImageKitClient) Upload(ctx context.Context, src Source, opts Options) (*Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	switch src.Kind() {
	case "bytes":
		part, err := w.CreateFormFile("file", opts.FileName)
		if err != nil {
			return nil, fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(src.Bytes); err != nil {
			return nil, fmt.Errorf("write file part: %w", err)
		}
	case "base64":
		value := src.Base64
		if src.MIMEType != "" {
			value = "data:" + src.MIMEType + ";base64," + src.Base64
		}
		if err := w.WriteField("file", value); err != nil {
			return nil, fmt.Errorf("write file field: %w", err)
		}
	case "url":
		if err := w.WriteField("file", src.URL); err != nil {
			return nil, fmt.Errorf("write file field: %w", err)
		}
	default:
		return nil, fmt.Errorf("imagekit upload: empty source")
	}

	fields := map[string]string{
		"fileName":          opts.FileName,
		"useUniqueFileName": strconv.FormatBool(opts.UseUniqueFileName),
		"overwriteFile":     strconv.FormatBool(opts.Overwrite),
	}
	if opts.Folder != "" {
		fields["folder"] = opts.Folder
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write %s field: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.privateKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagekit upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read imagekit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var ie imageKitError
		msg := truncateString(string(respBody), 200)
		if json.Unmarshal(respBody, &ie) == nil && ie.Message != "" {
			msg = ie.Message
		}
		return nil, fmt.Errorf("imagekit upload returned %d: %s", resp.StatusCode, msg)
	}

	var ir imageKitResponse
	if err := json.Unmarshal(respBody, &ir); err != nil {
		return nil, fmt.Errorf("parse imagekit response: %w", err)
	}
	if ir.URL == "" {
		return nil, fmt.Errorf("imagekit response missing url")
	}

	log.Debug().
		Str("fileId", ir.FileID).
		Str("filePath", ir.FilePath).
		Str("source", src.Kind()).
		Int64("size", ir.Size).
		Msg("Uploaded to ImageKit")

	return &Result{URL: ir.URL, FileID: ir.FileID, SizeBytes: ir.Size}, nil
}
