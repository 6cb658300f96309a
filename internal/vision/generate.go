package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	// Image carries the reference photo as a base64 data URL; optional.
	Image          string `json:"image,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate produces one stylized candidate from the instruction, optionally
// conditioned on the reference photo. Decoded image bytes are returned; any
// failure is a GenerationError and up to the caller to handle.
func (c *Client) Generate(ctx context.Context, instruction string, reference []byte, referenceMIME string) ([]byte, error) {
	req := generateRequest{
		Model:          c.cfg.GenerateModel,
		Prompt:         instruction,
		ResponseFormat: "b64_json",
	}
	if len(reference) > 0 {
		req.Image = dataURL(reference, referenceMIME)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("post generation: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &GenerationError{Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(string(payload), 200))}
	}

	var parsed generateResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, &GenerationError{Err: fmt.Errorf("gateway returned no image")}
	}

	image, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("decode image: %w", err)}
	}
	return image, nil
}
