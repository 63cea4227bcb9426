package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	falQueueBase = "https://queue.fal.run"

	falRembgModel      = "fal-ai/imageutils/rembg"
	falBackgroundModel = "fal-ai/iclight-v2"

	falPollInterval = time.Second
	falMaxPolls     = 120
)

// Fal drives models on the fal.ai queue API: submit, poll the status URL,
// then fetch the response payload.
type Fal struct {
	http *http.Client
	base string
}

func NewFal(httpClient *http.Client) *Fal {
	return &Fal{http: httpClient, base: falQueueBase}
}

func (p *Fal) Name() string {
	return "fal"
}

func (p *Fal) Remove(ctx context.Context, image []byte, apiKey, prompt string) ([]byte, error) {
	args := map[string]interface{}{
		"image_url": imageDataURL(image),
	}

	return p.run(ctx, falRembgModel, apiKey, args)
}

// PlaceOnBackground generates a new scene behind an already cut-out
// subject, guided by the free-text prompt.
func (p *Fal) PlaceOnBackground(ctx context.Context, image []byte, apiKey, prompt string) ([]byte, error) {
	args := map[string]interface{}{
		"image_url": imageDataURL(image),
	}
	if prompt != "" {
		args["prompt"] = prompt
	}

	return p.run(ctx, falBackgroundModel, apiKey, args)
}

type falQueueStatus struct {
	Status      string `json:"status"`
	ResponseURL string `json:"response_url"`
	StatusURL   string `json:"status_url"`
}

func (p *Fal) run(ctx context.Context, model, apiKey string, args map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/"+model, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("fal API error: %s", string(body))
	}

	var queued falQueueStatus
	if err := json.Unmarshal(body, &queued); err != nil {
		return nil, err
	}

	for i := 0; i < falMaxPolls; i++ {
		if queued.Status == "COMPLETED" {
			return p.fetchResult(ctx, queued.ResponseURL, apiKey)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(falPollInterval):
		}

		statusReq, err := http.NewRequestWithContext(ctx, http.MethodGet, queued.StatusURL, nil)
		if err != nil {
			return nil, err
		}
		statusReq.Header.Set("Authorization", "Key "+apiKey)

		statusResp, err := p.http.Do(statusReq)
		if err != nil {
			return nil, err
		}

		err = json.NewDecoder(statusResp.Body).Decode(&queued)
		statusResp.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("fal processing timeout")
}

func (p *Fal) fetchResult(ctx context.Context, responseURL, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, responseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Image struct {
			URL string `json:"url"`
		} `json:"image"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
		Output string `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	resultURL := result.Image.URL
	if resultURL == "" && len(result.Images) > 0 {
		resultURL = result.Images[0].URL
	}
	if resultURL == "" {
		resultURL = result.Output
	}
	if resultURL == "" {
		return nil, fmt.Errorf("fal: no image in result")
	}

	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}

	imgResp, err := p.http.Do(imgReq)
	if err != nil {
		return nil, err
	}
	defer imgResp.Body.Close()

	if imgResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download fal result: %d", imgResp.StatusCode)
	}

	return io.ReadAll(imgResp.Body)
}

func imageDataURL(image []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
}
