package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // GIF 디코더 등록
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"math"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	// ThumbnailSize - 미리보기 썸네일 최대 가로/세로
	ThumbnailSize = 256
	// ThumbnailQuality - 썸네일 WebP 품질
	ThumbnailQuality = 80
)

// ToDataURL - 바이너리를 data URL 로 변환 (FileReader.readAsDataURL 과 같은 형식)
func ToDataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FromDataURL - base64 data URL 을 media type 과 바이너리로 분리
func FromDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return mediaType, data, nil
}

// WebPThumbnail - 이미지를 썸네일 크기로 줄이고 WebP data URL 로 인코딩
func WebPThumbnail(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := FitImage(src, ThumbnailSize, ThumbnailSize)

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, ThumbnailQuality)
	if err != nil {
		return "", fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, thumb, options); err != nil {
		return "", fmt.Errorf("failed to encode WebP: %w", err)
	}

	return ToDataURL("image/webp", buf.Bytes()), nil
}

// FitImage - 비율 유지하며 maxWidth x maxHeight 안으로 축소 (확대는 하지 않음)
func FitImage(src image.Image, maxWidth, maxHeight int) image.Image {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()
	if srcWidth == 0 || srcHeight == 0 {
		return src
	}

	scale := math.Min(float64(maxWidth)/float64(srcWidth), float64(maxHeight)/float64(srcHeight))
	if scale >= 1 {
		return src
	}

	newWidth := max(1, int(float64(srcWidth)*scale))
	newHeight := max(1, int(float64(srcHeight)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))

	// Nearest Neighbor 방식
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := srcBounds.Min.X + int(float64(x)/scale)
			srcY := srcBounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}
