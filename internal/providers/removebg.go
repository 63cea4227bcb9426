package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const removeBGEndpoint = "https://api.remove.bg/v1.0/removebg"

type RemoveBG struct {
	http     *http.Client
	endpoint string
}

func NewRemoveBG(httpClient *http.Client) *RemoveBG {
	return &RemoveBG{http: httpClient, endpoint: removeBGEndpoint}
}

func (p *RemoveBG) Name() string {
	return "removebg"
}

func (p *RemoveBG) Remove(ctx context.Context, image []byte, apiKey, prompt string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image_file", "image.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := writer.WriteField("size", "auto"); err != nil {
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
	req.Header.Set("X-Api-Key", apiKey)

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
		return nil, fmt.Errorf("remove.bg API error: %s", string(data))
	}

	return data, nil
}
