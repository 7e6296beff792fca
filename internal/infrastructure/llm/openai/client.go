package openai

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

const defaultHTTPTimeout = 120 * time.Second

type Config struct {
	BaseURL           string
	APIKey            string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to an OpenAI-compatible chat/completions endpoint. One client
// is shared by every provider variant so the limiter paces the whole account.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
	limiter    *rate.Limiter
	exec       *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: newHTTPClient(timeout),
		limiter:    rate.NewLimiter(limit, burst),
		exec:       exec,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type completion struct {
	content      string
	inputTokens  int
	outputTokens int
}

// completeJSON issues one strict-JSON chat completion. Rate-limited calls are
// retried by the executor; everything else fails on the first attempt.
func (c *Client) completeJSON(ctx context.Context, model string, messages []chatMessage) (completion, error) {
	operation := "openai.chat." + model
	request := chatRequest{
		Model:          model,
		Messages:       messages,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	resp, err := resilience.Do(ctx, c.exec, operation, func(callCtx context.Context) (chatResponse, error) {
		if err := c.limiter.Wait(callCtx); err != nil {
			return chatResponse{}, err
		}
		var out chatResponse
		if err := c.postJSON(callCtx, "/chat/completions", request, &out, operation); err != nil {
			return chatResponse{}, err
		}
		return out, nil
	}, classifyOpenAIError)
	if err != nil {
		return completion{}, wrapTemporaryIfNeeded(operation, err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if content == "" {
		return completion{}, domain.WrapError(domain.ErrInvalidInput, operation, errEmptyResponse)
	}
	return completion{
		content:      content,
		inputTokens:  resp.Usage.PromptTokens,
		outputTokens: resp.Usage.CompletionTokens,
	}, nil
}
