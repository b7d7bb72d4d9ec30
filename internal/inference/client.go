package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultTimeout = 20 * time.Second

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	HTTPClient *http.Client `name:"llm_http_client" optional:"true"`
}

// OpenAIClient calls an OpenAI-compatible chat completion endpoint once per
// request; retries are left to the ingestion worker.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

func NewClient(p Params) Client {
	cfg := p.Config.LLM
	log := p.Log.Named("inference.client")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &OpenAIClient{
		model:   strings.TrimSpace(cfg.Model),
		timeout: timeout,
		log:     log,
	}
	if strings.TrimSpace(cfg.APIKey) == "" || c.model == "" {
		log.Warn("inference disabled: api key or model missing")
		return c
	}

	httpClient := p.HTTPClient
	if httpClient == nil {
		httpClient = tracing.NewClient("llm", nil)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	client := openai.NewClient(opts...)
	c.client = &client
	return c
}

func (c *OpenAIClient) Infer(ctx context.Context, req Request) (Result, error) {
	if c.client == nil {
		return Result{}, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(req)),
		},
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	var httpResp *http.Response
	resp, err := c.client.Chat.Completions.New(ctx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		return Result{}, c.classify(err, httpResp)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: no choices returned", ErrParse)
	}

	recs, err := ParseRecommendations(resp.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}

	model := strings.TrimSpace(resp.Model)
	if model == "" {
		model = c.model
	}
	return Result{Model: model, Recommendations: recs}, nil
}

// classify maps SDK failures onto the error contract: no response at all is
// unavailability, anything the upstream answered with is a parse failure.
func (c *OpenAIClient) classify(err error, httpResp *http.Response) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c.log.Warn("inference call timed out", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		c.log.Warn("inference upstream rejected request", zap.Int("status_code", apiErr.StatusCode))
		return fmt.Errorf("%w: upstream status %d", ErrParse, apiErr.StatusCode)
	}
	if httpResp != nil {
		c.log.Warn("inference response undecodable", zap.Int("status_code", httpResp.StatusCode), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrParse, err)
	}

	c.log.Warn("inference transport failed", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
