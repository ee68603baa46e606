package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Uploader pushes local files into a drop box through the guest upload API,
// one file per call.
type Uploader struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewUploader creates an uploader for the drop box named by token on the
// given server.
func NewUploader(baseURL, token string) *Uploader {
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// UploadResult is the server's record of one accepted file.
type UploadResult struct {
	FileID       string `json:"file_id"`
	OriginalName string `json:"original_name"`
	FileSize     int64  `json:"file_size"`
}

// Upload sends one local file. Quota rejections and expired tokens come back
// as errors carrying the server's reason string.
func (u *Uploader) Upload(ctx context.Context, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	url := fmt.Sprintf("%s/api/guest/%s/files", u.baseURL, u.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("server rejected %s: %s", filepath.Base(path), readError(resp.Body, resp.StatusCode))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func readError(r io.Reader, status int) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(r).Decode(&e) == nil && e.Error != "" {
		return e.Error
	}
	return fmt.Sprintf("HTTP %d", status)
}
