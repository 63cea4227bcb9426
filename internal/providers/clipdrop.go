package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const clipdropEndpoint = "https://clipdrop-api.co/remove-background/v1"

type Clipdrop struct {
	http     *http.Client
	endpoint string
}

func NewClipdrop(httpClient *http.Client) *Clipdrop {
	return &Clipdrop{http: httpClient, endpoint: clipdropEndpoint}
}

func (p *Clipdrop) Name() string {
	return "clipdrop"
}

func (p *Clipdrop) Remove(ctx context.Context, image []byte, apiKey, prompt string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image_file", "image.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clipdrop API error: %s", string(data))
	}

	return data, nil
}
