package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/config"
	"mailtriage/pkg/metrics"
)

// Verdict is the structured output of the classification service. IsInquiry
// drives triage; every other field is best-effort extraction and may be
// empty when the model could not find it.
type Verdict struct {
	IsInquiry     bool     `json:"is_inquiry"`
	InquiryType   string   `json:"inquiry_type"`
	InquiryReason string   `json:"inquiry_reason"`
	SenderName    string   `json:"sender_name"`
	CompanyName   string   `json:"company_name"`
	MobileNumber  string   `json:"mobile_number"`
	Purpose       string   `json:"purpose"`
	KeyQuestions  []string `json:"key_questions"`
	Summary       string   `json:"summary"`
}

// Result pairs the decoded verdict with the cleaned model output. Raw is
// persisted verbatim so the stored record round-trips back to the verdict.
type Result struct {
	Verdict Verdict
	Raw     json.RawMessage
}

const promptTemplate = `Analyze this email and determine if it's a sales inquiry or other type of message.
Return JSON with these fields:
{
    "is_inquiry": boolean,
    "inquiry_type": "sales|support|general|other",
    "inquiry_reason": "reason for classification",
    "sender_name": "if inquiry, extracted name",
    "company_name": "if inquiry, extracted company",
    "mobile_number": "if inquiry, extracted phone",
    "purpose": "if inquiry, main purpose",
    "key_questions": ["if inquiry, list of questions"],
    "summary": "if inquiry, 3-4 sentence summary"
}

Email Subject: %s
Email Content: %s

Return ONLY the JSON object.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls an OpenAI-compatible chat-completion endpoint with a fixed
// instruction prompt and decodes the model's answer into a Verdict. A
// circuit breaker fails the remaining calls of a cycle fast once the
// service is down.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func NewClient(cfg config.ClassifierConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
	}
}

// Classify sends one message's subject and body for classification. Any
// failure (network, non-200, unparsable output) surfaces as an error so the
// caller skips persistence and the message stays eligible for the next
// cycle.
func (c *Client) Classify(ctx context.Context, subject, body string) (*Result, error) {
	start := time.Now()

	var result *Result
	err := c.breaker.Execute(func() error {
		var callErr error
		result, callErr = c.classify(ctx, subject, body)
		return callErr
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordClassifierLatency(status, time.Since(start))

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) classify(ctx context.Context, subject, body string) (*Result, error) {
	prompt := fmt.Sprintf(promptTemplate, subject, body)

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classification service returned %d: %s", resp.StatusCode, string(errBody))
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("classification service returned invalid envelope: %w", err)
	}

	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("classification service returned no content")
	}

	return ParseVerdict(envelope.Choices[0].Message.Content)
}

// ParseVerdict strips markdown code fences the model may wrap its answer in
// and decodes the remainder as a Verdict.
func ParseVerdict(content string) (*Result, error) {
	cleaned := strings.ReplaceAll(content, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var v Verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("classification service returned unparsable output: %w", err)
	}

	return &Result{
		Verdict: v,
		Raw:     json.RawMessage(cleaned),
	}, nil
}
