package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

var (
	ErrNoCandidates = errors.New("model returned no candidates")
)

// Image is an inline image payload for a model call.
type Image struct {
	MIMEType string
	Data     []byte
}

type ClientOptions struct {
	APIKey     string
	Model      string
	BaseURL    string       // defaults to the public generativelanguage endpoint
	HTTPClient *http.Client // defaults to a client with a 120s timeout
}

// Client calls the generative model service over its REST API.
// It is safe for concurrent use.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(opts ClientOptions) *Client {
	c := &Client{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return c
}

// Request/response wire shapes for the generateContent endpoint.

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generateJSON sends one generateContent call and unmarshals the first
// candidate's text, which the prompts require to be a JSON object, into out.
func (c *Client) generateJSON(ctx context.Context, parts []part, out any) error {
	reqBody := generateContentRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: &generationConfig{ResponseMIMEType: "application/json"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal model request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call model service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service returned status %d: %.200s", resp.StatusCode, string(body))
	}

	var gcr generateContentResponse
	if err := json.Unmarshal(body, &gcr); err != nil {
		return fmt.Errorf("parse model response: %w", err)
	}

	text := firstCandidateText(gcr)
	if text == "" {
		return ErrNoCandidates
	}

	if err := json.Unmarshal([]byte(stripJSONFences(text)), out); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}

	return nil
}

func firstCandidateText(gcr generateContentResponse) string {
	for _, cand := range gcr.Candidates {
		for _, p := range cand.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text
			}
		}
	}
	return ""
}

// stripJSONFences removes a ```json ... ``` wrapper some model responses
// carry even in JSON response mode.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
