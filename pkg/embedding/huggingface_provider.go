package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const huggingFaceInferenceURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFaceProvider calls the feature-extraction pipeline of a hosted
// sentence-embedding model.
type HuggingFaceProvider struct {
	Token   string
	Model   string
	BaseURL string
	Dims    int
	Client  *http.Client
}

func NewHuggingFaceProvider(token, model string, dims int) EmbeddingProvider {
	if model == "" {
		model = "sentence-transformers/all-mpnet-base-v2"
	}
	return &HuggingFaceProvider{
		Token:   token,
		Model:   model,
		BaseURL: huggingFaceInferenceURL,
		Dims:    dims,
		Client:  defaultHTTPClient(),
	}
}

func (p *HuggingFaceProvider) Dimensions() int {
	return p.Dims
}

func (p *HuggingFaceProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	body, err := json.Marshal(map[string]interface{}{"inputs": text})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/pipeline/feature-extraction", p.BaseURL, p.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface feature-extraction error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	values, err := decodeFeatures(bodyBytes)
	if err != nil {
		return nil, err
	}
	return finalize(values, p.Dims)
}

// decodeFeatures accepts a pooled sentence vector or per-token vectors,
// which are mean-pooled.
func decodeFeatures(body []byte) ([]float32, error) {
	var pooled []float32
	if err := json.Unmarshal(body, &pooled); err == nil {
		if len(pooled) == 0 {
			return nil, fmt.Errorf("feature-extraction returned no vectors")
		}
		return pooled, nil
	}

	var tokens [][]float32
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("unexpected feature-extraction payload: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("feature-extraction returned no vectors")
	}

	mean := make([]float32, len(tokens[0]))
	for _, tok := range tokens {
		if len(tok) != len(mean) {
			return nil, fmt.Errorf("ragged token vectors")
		}
		for i, v := range tok {
			mean[i] += v
		}
	}
	n := float32(len(tokens))
	for i := range mean {
		mean[i] /= n
	}
	return mean, nil
}
