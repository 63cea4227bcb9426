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
	replicateEndpoint = "https://api.replicate.com/v1/predictions"

	// Background-removal model version pinned by the original deployment.
	replicateVersion = "fb8af171c9291633f4fdc47b81132f81f2257026"

	replicatePollInterval = time.Second
	replicateMaxPolls     = 60
)

type Replicate struct {
	http     *http.Client
	endpoint string
}

func NewReplicate(httpClient *http.Client) *Replicate {
	return &Replicate{http: httpClient, endpoint: replicateEndpoint}
}

func (p *Replicate) Name() string {
	return "replicate"
}

type replicatePrediction struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Output interface{} `json:"output"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Remove creates a prediction and polls it until it succeeds, fails or the
// poll budget runs out.
func (p *Replicate) Remove(ctx context.Context, image []byte, apiKey, prompt string) ([]byte, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	payload, err := json.Marshal(map[string]interface{}{
		"version": replicateVersion,
		"input":   map[string]string{"image": dataURL},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+apiKey)
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

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("replicate API error: %s", string(body))
	}

	var prediction replicatePrediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, err
	}

	pollURL := prediction.URLs.Get
	if pollURL == "" {
		pollURL = p.endpoint + "/" + prediction.ID
	}

	for i := 0; i < replicateMaxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(replicatePollInterval):
		}

		current, err := p.poll(ctx, pollURL, apiKey)
		if err != nil {
			return nil, err
		}

		switch current.Status {
		case "succeeded":
			outputURL, ok := current.Output.(string)
			if !ok {
				if urls, isList := current.Output.([]interface{}); isList && len(urls) > 0 {
					outputURL, _ = urls[0].(string)
				}
			}
			if outputURL == "" {
				return nil, fmt.Errorf("replicate returned no output")
			}
			return p.download(ctx, outputURL)
		case "failed", "canceled":
			return nil, fmt.Errorf("replicate processing failed")
		}
	}

	return nil, fmt.Errorf("replicate processing timeout")
}

func (p *Replicate) poll(ctx context.Context, url, apiKey string) (*replicatePrediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var prediction replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, err
	}

	return &prediction, nil
}

func (p *Replicate) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download replicate result: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
