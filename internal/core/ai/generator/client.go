// Package generator 包裝語言模型呼叫：建立提示詞、主模型失敗時改用備援模型一次、解析 JSON 輸出。
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recipe-ingest/internal/core/ai/cache"
	"recipe-ingest/internal/core/ai/gemini"
	"recipe-ingest/internal/core/ai/openrouter"
	"recipe-ingest/internal/core/ai/provider"
	"recipe-ingest/internal/core/ai/queue"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

const (
	defaultCallTimeout          = 90 * time.Second
	defaultMinInstructionLength = 50

	nameMaxTokens    = 200
	detailsMaxTokens = 800
)

// Client 生成器客戶端
type Client struct {
	primary              provider.Provider
	fallback             provider.Provider
	cache                cache.Cache
	queue                *queue.Manager
	callTimeout          time.Duration
	temperature          float64
	maxTokens            int
	minInstructionLength int
}

// Option 客戶端選項
type Option func(*Client)

// WithFallback 設定備援模型
func WithFallback(p provider.Provider) Option {
	return func(c *Client) { c.fallback = p }
}

// WithCache 設定回應快取
func WithCache(ch cache.Cache) Option {
	return func(c *Client) { c.cache = ch }
}

// WithQueue 設定生成槽位
func WithQueue(q *queue.Manager) Option {
	return func(c *Client) { c.queue = q }
}

// WithCallTimeout 設定單次呼叫逾時
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithSampling 設定溫度與完整生成的 token 上限
func WithSampling(temperature float64, maxTokens int) Option {
	return func(c *Client) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// WithMinInstructionLength 提示詞中要求的最短步驟長度
func WithMinInstructionLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.minInstructionLength = n
		}
	}
}

// NewClient 建立生成器客戶端
func NewClient(primary provider.Provider, opts ...Option) *Client {
	c := &Client{
		primary:              primary,
		callTimeout:          defaultCallTimeout,
		temperature:          0.7,
		maxTokens:            4000,
		minInstructionLength: defaultMinInstructionLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig 依設定建立主模型與備援模型
func NewFromConfig(ctx context.Context, cfg *config.Config, ch cache.Cache, q *queue.Manager) (*Client, error) {
	primary, err := newProvider(ctx, cfg, cfg.Generator.Primary)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithCache(ch),
		WithQueue(q),
		WithCallTimeout(cfg.Generator.CallTimeout),
		WithSampling(cfg.Generator.Primary.Temperature, cfg.Generator.Primary.MaxTokens),
		WithMinInstructionLength(cfg.Pipeline.MinInstructionLength),
	}
	if cfg.Generator.Fallback.Model != "" {
		fallback, err := newProvider(ctx, cfg, cfg.Generator.Fallback)
		if err != nil {
			_ = primary.Close()
			return nil, err
		}
		opts = append(opts, WithFallback(fallback))
	}

	common.LogInfo("生成器已初始化",
		zap.String("primary", cfg.Generator.Primary.Model),
		zap.String("fallback", cfg.Generator.Fallback.Model),
		zap.Duration("call_timeout", cfg.Generator.CallTimeout),
	)
	return NewClient(primary, opts...), nil
}

func newProvider(ctx context.Context, cfg *config.Config, mc config.ModelConfig) (provider.Provider, error) {
	switch mc.Provider {
	case config.ProviderOpenRouter:
		return openrouter.NewClient(cfg.OpenRouter.APIKey, mc), nil
	case config.ProviderGemini:
		return gemini.NewClient(ctx, cfg.Gemini.APIKey, mc)
	default:
		return nil, common.NewConfigurationError(fmt.Sprintf("unknown provider %q", mc.Provider))
	}
}

// GenerateName 只生成食譜名稱
func (c *Client) GenerateName(ctx context.Context, req common.GenerationRequest) (string, error) {
	var out struct {
		Nom string `json:"nom"`
	}
	err := c.complete(ctx, "generate_name", namePrompt(req), nameMaxTokens, []string{"nom"}, func(obj string) error {
		if err := common.ParseJSON(obj, &out); err != nil {
			return err
		}
		if strings.TrimSpace(out.Nom) == "" {
			return errors.New("empty nom")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Nom), nil
}

// GenerateFull 生成完整食譜；name 非空時要求模型沿用該名稱
func (c *Client) GenerateFull(ctx context.Context, req common.GenerationRequest, name string) (*common.GeneratedRecipe, error) {
	var out common.GeneratedRecipe
	prompt := fullPrompt(req, name, c.minInstructionLength)
	err := c.complete(ctx, "generate_full", prompt, c.maxTokens, []string{"recette", "ingredients", "ustensiles"}, func(obj string) error {
		out = common.GeneratedRecipe{}
		return common.ParseJSON(obj, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateIngredientDetails 補齊單一食材的欄位
func (c *Client) GenerateIngredientDetails(ctx context.Context, name, hint string) (*common.GeneratedIngredient, error) {
	var out common.GeneratedIngredient
	err := c.complete(ctx, "ingredient_details", ingredientPrompt(name, hint), detailsMaxTokens, []string{"nom", "categorie"}, func(obj string) error {
		out = common.GeneratedIngredient{}
		return common.ParseJSON(obj, &out)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Nom) == "" {
		out.Nom = name
	}
	return &out, nil
}

// GenerateUtensilDetails 補齊單一器具的欄位
func (c *Client) GenerateUtensilDetails(ctx context.Context, name, hint string) (*common.GeneratedUtensil, error) {
	var out common.GeneratedUtensil
	err := c.complete(ctx, "utensil_details", utensilPrompt(name, hint), detailsMaxTokens, []string{"nom", "categorie"}, func(obj string) error {
		out = common.GeneratedUtensil{}
		return common.ParseJSON(obj, &out)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Nom) == "" {
		out.Nom = name
	}
	return &out, nil
}

// complete 依序嘗試主模型與備援模型，第一個成功解析的結果勝出
func (c *Client) complete(ctx context.Context, op, prompt string, maxTokens int, required []string, decode func(obj string) error) error {
	models := []provider.Provider{c.primary}
	if c.fallback != nil {
		models = append(models, c.fallback)
	}

	req := provider.Prompt(systemPrompt, prompt, maxTokens, c.temperature)
	var errs []error
	allParse := true
	for i, p := range models {
		err := c.attempt(ctx, p, req, required, decode)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.GetModel(), err))
		if !errors.Is(err, common.ErrParseFailure) {
			allParse = false
		}
		if ctx.Err() != nil {
			break
		}
		if i == 0 && len(models) > 1 {
			common.LogWarn("主模型失敗，改用備援模型",
				zap.String("operation", op),
				zap.String("primary", p.GetModel()),
				zap.String("fallback", models[1].GetModel()),
				zap.Error(err),
			)
		}
	}

	joined := errors.Join(errs...)
	if allParse {
		return common.NewParseFailure(op+": no usable JSON object in generator output", joined)
	}
	return common.NewGenerationFailure(op+": all models failed", joined)
}

// attempt 對單一模型進行一次呼叫
func (c *Client) attempt(ctx context.Context, p provider.Provider, req *provider.Request, required []string, decode func(string) error) error {
	key := cache.Key(p.GetModel(), req.Messages[len(req.Messages)-1].Content)
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			if err := parse(raw, required, decode); err == nil {
				return nil
			}
		}
	}

	var resp *provider.Response
	call := func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		start := time.Now()
		var err error
		resp, err = p.Generate(callCtx, req)
		common.LogAICall(p.GetModel(), time.Since(start), err)
		return err
	}

	var err error
	if c.queue != nil {
		err = c.queue.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return err
	}

	if err := parse(resp.Content, required, decode); err != nil {
		common.LogDebug("無法解析模型輸出",
			zap.String("model", p.GetModel()),
			zap.String("output", common.Truncate(resp.Content, 200)),
			zap.Error(err),
		)
		return err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, resp.Content); err != nil {
			common.LogWarn("快取寫入失敗", zap.Error(err))
		}
	}
	return nil
}

// parse 取出第一個 JSON 物件、檢查必要欄位並解碼
func parse(raw string, required []string, decode func(string) error) error {
	obj, err := common.ExtractJSONObject(raw)
	if err != nil {
		return common.NewParseFailure("no JSON object found", err)
	}
	missing, err := common.MissingKeys(obj, required...)
	if err != nil {
		return common.NewParseFailure("invalid JSON object", err)
	}
	if len(missing) > 0 {
		return common.NewParseFailure("missing required keys: "+strings.Join(missing, ", "), nil)
	}
	if err := decode(obj); err != nil {
		return common.NewParseFailure("unexpected payload shape", err)
	}
	return nil
}

// Close 關閉所有提供者
func (c *Client) Close() error {
	var errs []error
	if c.primary != nil {
		errs = append(errs, c.primary.Close())
	}
	if c.fallback != nil {
		errs = append(errs, c.fallback.Close())
	}
	return errors.Join(errs...)
}
