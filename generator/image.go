package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrNotImage URL стиля вернул не изображение
var ErrNotImage = errors.New("content type from URL is not an image")

// maxImageSize предел размера изображения стиля
const maxImageSize = 20 << 20

// Image загруженное изображение стиля
type Image struct {
	Data     []byte
	MimeType string
}

// FetchImage скачивает изображение; Content-Type должен быть image/*
func FetchImage(ctx context.Context, client *http.Client, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image %s: status %d", url, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	return &Image{Data: data, MimeType: mediaType}, nil
}
