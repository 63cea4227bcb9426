package client

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
)

// ProcessingClient wraps the remote image processing endpoints: model
// dispatch, template compositing and generative background placement. All
// three are plain request/response transforms; none of them is guaranteed
// deterministic, so callers must not expect byte-identical repeats.
type ProcessingClient struct {
	baseURL string
	http    *http.Client
}

func NewProcessingClient(baseURL string, httpClient *http.Client) *ProcessingClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &ProcessingClient{baseURL: baseURL, http: httpClient}
}

// ProcessImage posts the image to /api/process for background removal by
// the named model. The api key may be empty for key-optional models; the
// proxy then falls back to its own configured key.
func (c *ProcessingClient) ProcessImage(ctx context.Context, img Artifact, model, apiKey, prompt string) (Artifact, error) {
	fields := map[string]string{"model": model}
	if apiKey != "" {
		fields["apiKey"] = apiKey
	}
	if prompt != "" {
		fields["prompt"] = prompt
	}

	resp, err := c.postImage(ctx, "/api/process", "image", img, fields)
	if err != nil {
		return Artifact{}, &ProcessingError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Artifact{}, &ProcessingError{
			StatusCode: resp.StatusCode,
			Message:    errorDetail(resp, "image processing failed"),
		}
	}

	return readArtifact(resp)
}

// CompositeOnTemplate posts the cutout to /api/place-template with the
// target canvas size.
func (c *ProcessingClient) CompositeOnTemplate(ctx context.Context, img Artifact, templateID string, width, height int) (Artifact, error) {
	fields := map[string]string{
		"template": templateID,
		"width":    strconv.Itoa(width),
		"height":   strconv.Itoa(height),
	}

	resp, err := c.postImage(ctx, "/api/place-template", "image", img, fields)
	if err != nil {
		return Artifact{}, &TemplateError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Artifact{}, &TemplateError{
			StatusCode: resp.StatusCode,
			Message:    errorDetail(resp, "template compositing failed"),
		}
	}

	return readArtifact(resp)
}

// CompositeOnBackground posts the already background-removed image to
// /api/place-on-background together with a free-text placement prompt.
func (c *ProcessingClient) CompositeOnBackground(ctx context.Context, img Artifact, prompt string) (Artifact, error) {
	fields := map[string]string{}
	if prompt != "" {
		fields["prompt"] = prompt
	}

	resp, err := c.postImage(ctx, "/api/place-on-background", "processedImage", img, fields)
	if err != nil {
		return Artifact{}, &BackgroundError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Artifact{}, &BackgroundError{
			StatusCode: resp.StatusCode,
			Message:    errorDetail(resp, "background placement failed"),
		}
	}

	return readArtifact(resp)
}

func (c *ProcessingClient) postImage(ctx context.Context, path, fileField string, img Artifact, fields map[string]string) (*http.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile(fileField, "image.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, err
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.http.Do(req)
}

func readArtifact(resp *http.Response) (Artifact, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read response body: %w", err)
	}

	return NewArtifact(data, resp.Header.Get("Content-Type")), nil
}

// errorDetail extracts the server-supplied message from an error body.
// Both `detail` (the original proxy) and `message` shapes are accepted;
// anything unparseable falls back to the generic message.
func errorDetail(resp *http.Response, fallback string) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || len(body) == 0 {
		return fallback
	}

	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}

	if payload.Detail != "" {
		return payload.Detail
	}
	if payload.Message != "" {
		return payload.Message
	}

	return fallback
}
