package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "receipts/internal/log"
)

const (
	DefaultBaseURL = "https://router.huggingface.co/v1"
	DefaultModel   = "google/gemma-3-27b-it:nebius"

	// DefaultPrompt asks for the grand total only, digits without currency
	// symbols or separators.
	DefaultPrompt = "Read the receipt in this image and output only the final amount paid " +
		"(the grand TOTAL) as a single number. Do not include currency symbols, " +
		"thousands separators or any other text."
)

// Config for the chat-completions client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat/completions endpoint with the image
// inlined as a data URL.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) ExtractTotal(ctx context.Context, image []byte) (int64, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.DebugContext(ctx, "Extracting receipt total",
		applog.FieldRequestID, rid,
		"model", c.cfg.Model,
		"image_bytes", len(image))

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: c.cfg.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)}},
			},
		}},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.ErrorContext(ctx, "OCR request failed",
			applog.FieldOperation, applog.OpExtract,
			applog.FieldRequestID, rid,
			applog.FieldError, err,
			applog.FieldDuration, time.Since(start).Milliseconds())
		return 0, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return 0, fmt.Errorf("decode ocr response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return 0, fmt.Errorf("no choices in ocr response")
	}
	reply := strings.TrimSpace(cc.Choices[0].Message.Content)
	total := ParseTotal(reply)

	c.log.InfoContext(ctx, "Receipt total extracted",
		applog.FieldOperation, applog.OpExtract,
		applog.FieldRequestID, rid,
		applog.FieldAmount, total,
		"reply_len", len(reply),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return total, nil
}

func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ocr status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
