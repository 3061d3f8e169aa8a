package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"flowai-video-server/modules/common/config"
)

const defaultContentType = "video/mp4"

type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.StorageBucket,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Enabled reports whether a bucket is configured.
func (c *Client) Enabled() bool {
	return c.bucket != ""
}

// PublicURL - 버킷 내 파일의 공개 URL
func (c *Client) PublicURL(filePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, filePath)
}

// ArchiveVideo streams the video at srcURL into the bucket under the
// session's folder and returns its public URL.
func (c *Client) ArchiveVideo(ctx context.Context, sessionID, jobID, srcURL string) (string, error) {
	log.Printf("📥 Downloading generated video from: %s", srcURL)

	// 1. 원본 다운로드
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}
	src, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	defer src.Body.Close()

	if src.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(src.Body, 1024))
		return "", fmt.Errorf("failed to download video: status %d, body: %s", src.StatusCode, string(body))
	}

	contentType := src.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	// 2. 파일 경로 생성
	filePath := fmt.Sprintf("generated-videos/session-%s/%s%s", sessionID, jobID, videoExt(srcURL))
	log.Printf("📤 Uploading video to storage: %s", filePath)

	// 3. 업로드 (다운로드 스트림 그대로 전달)
	if err := c.upload(ctx, filePath, contentType, src.Body, src.ContentLength); err != nil {
		return "", err
	}

	log.Printf("✅ Video archived successfully: %s", filePath)
	return c.PublicURL(filePath), nil
}

// UploadImage stores one input image of a job and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, sessionID, jobID, imageID, mediaType string, data []byte) (string, error) {
	filePath := fmt.Sprintf("input-images/session-%s/%s/%s%s", sessionID, jobID, imageID, imageExt(mediaType))
	if err := c.upload(ctx, filePath, mediaType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return c.PublicURL(filePath), nil
}

func (c *Client) upload(ctx context.Context, filePath, contentType string, body io.Reader, size int64) error {
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", filePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func imageExt(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".bin"
}

func videoExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".mp4"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return strings.ToLower(ext)
	}
	return ".mp4"
}
