package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rotimiadeleye/caseflow/internal/llm"
)

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate implements llm.Client against the Gemini generateContent REST API.
// Failures come back as classified *llm.InferenceError values: 429 is
// RateLimited (with the server-suggested delay when present), 5xx and network
// errors are Transient, everything else is Invalid.
func (c *Client) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	model := c.cfg.Model
	if len(p.Images) > 0 {
		model = c.cfg.VisionModel
	}

	c.logger.Info("gemini.generate.start",
		"req_id", rid,
		"model", model,
		"texts", len(p.Texts),
		"images", len(p.Images),
	)

	body, err := json.Marshal(buildRequest(p, c.cfg))
	if err != nil {
		return "", &llm.InferenceError{Kind: llm.Invalid, Message: "marshal request", Cause: err}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), model)
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("gemini.generate.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", &llm.InferenceError{Kind: llm.Transient, Message: "decode response", Cause: err}
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", &llm.InferenceError{
			Kind:    llm.Invalid,
			Message: "content generation blocked (" + gr.PromptFeedback.BlockReason + ")",
		}
	}
	if len(gr.Candidates) == 0 {
		return "", &llm.InferenceError{Kind: llm.Invalid, Message: "no candidates in response"}
	}

	var out strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	if out.Len() == 0 {
		reason := gr.Candidates[0].FinishReason
		if reason == "" {
			reason = "UNKNOWN"
		}
		return "", &llm.InferenceError{Kind: llm.Invalid, Message: "no text returned (reason: " + reason + ")"}
	}

	c.logger.Info("gemini.generate.ok",
		"req_id", rid,
		"out_bytes", out.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.String(), nil
}

func buildRequest(p llm.Prompt, cfg Config) generateRequest {
	req := generateRequest{
		GenerationConfig: &generationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxTokens,
		},
	}
	if p.Header != "" {
		req.SystemInstruction = &content{Parts: []contentPart{{Text: p.Header}}}
	}

	user := content{Role: "user"}
	for _, t := range p.Texts {
		user.Parts = append(user.Parts, contentPart{Text: t})
	}
	for _, img := range p.Images {
		user.Parts = append(user.Parts, contentPart{InlineData: &inlineData{
			MIMEType: img.MIME,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}
	if len(user.Parts) == 0 {
		user.Parts = append(user.Parts, contentPart{Text: ""})
	}
	req.Contents = []content{user}
	return req
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &llm.InferenceError{Kind: llm.Invalid, Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &llm.InferenceError{Kind: llm.Transient, Message: "http error", Cause: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("gemini response body close error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.InferenceError{Kind: llm.Transient, Message: "read response", Cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &llm.InferenceError{
			Kind:       llm.RateLimited,
			Message:    fmt.Sprintf("status 429: %s", snippet(raw)),
			RetryAfter: extractRetryDelay(raw),
		}
	case resp.StatusCode >= 500:
		return nil, &llm.InferenceError{
			Kind:    llm.Transient,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(raw)),
		}
	default:
		return nil, &llm.InferenceError{
			Kind:    llm.Invalid,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(raw)),
		}
	}
}

var retryDelayRe = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+)(?:\.\d+)?s"`)

// extractRetryDelay pulls the suggested delay out of a 429 error body and adds
// a small buffer so we don't hit the limit again immediately. Zero means the
// server gave no hint.
func extractRetryDelay(body []byte) time.Duration {
	m := retryDelayRe.FindSubmatch(body)
	if m == nil {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(string(m[1]), "%d", &secs); err != nil {
		return 0
	}
	return time.Duration(secs+2) * time.Second
}

func snippet(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
