package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const deepgramBaseURL = "https://api.deepgram.com/v1/listen"

// DeepgramClient calls Deepgram's prerecorded listen API.
// Implements the Provider interface.
type DeepgramClient struct {
	apiKey   string
	model    string // e.g. "nova-2"
	language string // e.g. "en-US"
	baseURL  string
	timeout  time.Duration
	client   *http.Client
}

// deepgramResponse is the JSON response from /v1/listen. Only the path down
// to the first channel's first alternative is consumed.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramClient creates a prerecorded transcription client with fixed
// recognition options: smart formatting on, one model, one language.
func NewDeepgramClient(apiKey, model, language string, timeout time.Duration) *DeepgramClient {
	return &DeepgramClient{
		apiKey:   apiKey,
		model:    model,
		language: language,
		baseURL:  deepgramBaseURL,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (dg *DeepgramClient) Name() string { return "deepgram" }

// Model returns the configured model identifier.
func (dg *DeepgramClient) Model() string { return dg.model }

// Transcribe sends the raw audio bytes to Deepgram and returns the plain
// transcript from the first channel's first alternative. Any non-success
// response or malformed body yields a *transcribe.Error.
func (dg *DeepgramClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", &Error{Provider: dg.Name(), Err: fmt.Errorf("read audio file: %w", err)}
	}

	params := url.Values{}
	params.Set("model", dg.model)
	params.Set("language", dg.language)
	params.Set("smart_format", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dg.baseURL+"?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", &Error{Provider: dg.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Token "+dg.apiKey)
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := dg.client.Do(req)
	if err != nil {
		return "", &Error{Provider: dg.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Provider: dg.Name(), Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Provider: dg.Name(), Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var result deepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &Error{Provider: dg.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", &Error{Provider: dg.Name(), Err: fmt.Errorf("response has no transcript alternatives")}
	}

	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}
