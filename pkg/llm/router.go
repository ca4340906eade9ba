package llm

import (
	"context"
	"strings"

	"github.com/kart-io/logger"
)

// Family 标识供应商家族。
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyDeepSeek  Family = "deepseek"
)

// FamilyForModel 按模型名前缀判断供应商家族。
// 未识别的前缀归入 OpenAI 家族（兼容 OpenAI API 的服务最常见）。
func FamilyForModel(model string) Family {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "text-davinci"):
		return FamilyOpenAI
	case strings.HasPrefix(m, "claude"):
		return FamilyAnthropic
	case strings.HasPrefix(m, "deepseek"):
		return FamilyDeepSeek
	default:
		return FamilyOpenAI
	}
}

// Router 按模型名将生成请求分发到已注册的供应商家族。
// 家族集合在构造时固定，运行期不可变，可安全并发使用。
type Router struct {
	providers map[Family]Provider
}

var _ Provider = (*Router)(nil)

// NewRouter 创建路由器。providers 的键为供应商家族。
func NewRouter(providers map[Family]Provider) *Router {
	m := make(map[Family]Provider, len(providers))
	for f, p := range providers {
		m[f] = p
	}
	return &Router{providers: m}
}

// Name 返回供应商名称。
func (r *Router) Name() string {
	return "router"
}

// Generate 将请求路由到 req.Model 对应的家族。
// 家族未注册时回退到 OpenAI 家族。
func (r *Router) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	family := FamilyForModel(req.Model)

	p, ok := r.providers[family]
	if !ok {
		p, ok = r.providers[FamilyOpenAI]
		if !ok {
			return nil, &ProviderError{Provider: string(family), Err: ErrMissingAPIKey}
		}
		logger.Warnw("provider family not configured, falling back to openai",
			"model", req.Model, "family", family)
	}

	return p.Generate(ctx, req)
}
