package observability

import (
	"sort"
	"strings"
	"sync"
)

// ModelPrice 模型价格，单位 USD / 百万 Token
type ModelPrice struct {
	Provider      string  `json:"provider" yaml:"provider"`
	Model         string  `json:"model" yaml:"model"`
	InputPerMTok  float64 `json:"input_per_mtok" yaml:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok" yaml:"output_per_mtok"`
}

// DefaultPrices 内置价格表。ollama 与 custom 端点按本地运行处理，不计费。
var DefaultPrices = []ModelPrice{
	{Provider: "openai", Model: "gpt-4o", InputPerMTok: 2.5, OutputPerMTok: 10},
	{Provider: "openai", Model: "gpt-4o-mini", InputPerMTok: 0.15, OutputPerMTok: 0.6},
	{Provider: "openai", Model: "gpt-4-turbo", InputPerMTok: 10, OutputPerMTok: 30},
	{Provider: "openai", Model: "gpt-3.5-turbo", InputPerMTok: 0.5, OutputPerMTok: 1.5},
	{Provider: "anthropic", Model: "claude-sonnet-4", InputPerMTok: 3, OutputPerMTok: 15},
	{Provider: "anthropic", Model: "claude-3-5-sonnet", InputPerMTok: 3, OutputPerMTok: 15},
	{Provider: "anthropic", Model: "claude-3-5-haiku", InputPerMTok: 0.8, OutputPerMTok: 4},
	{Provider: "anthropic", Model: "claude-3-haiku", InputPerMTok: 0.25, OutputPerMTok: 1.25},
	{Provider: "anthropic", Model: "claude-3-opus", InputPerMTok: 15, OutputPerMTok: 75},
}

// CostCalculator 按 provider + model 估算单次调用的成本。
// 上游返回的模型名常带日期后缀（gpt-4o-mini-2024-07-18），
// 精确匹配失败时取最长的 "<model>-" 前缀。
type CostCalculator struct {
	mu     sync.RWMutex
	prices map[string]map[string]ModelPrice // provider -> model -> price
}

// NewCostCalculator 创建带内置价格表的计算器
func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{prices: make(map[string]map[string]ModelPrice)}
	c.UpdatePrices(DefaultPrices)
	return c
}

// SetPrice 设置或覆盖一个模型的价格
func (c *CostCalculator) SetPrice(p ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(p)
}

// UpdatePrices 批量覆盖价格（来自配置）
func (c *CostCalculator) UpdatePrices(prices []ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range prices {
		c.setLocked(p)
	}
}

func (c *CostCalculator) setLocked(p ModelPrice) {
	models, ok := c.prices[p.Provider]
	if !ok {
		models = make(map[string]ModelPrice)
		c.prices[p.Provider] = models
	}
	models[p.Model] = p
}

// Price 查找模型价格
func (c *CostCalculator) Price(provider, model string) (ModelPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := c.prices[provider]
	if p, ok := models[model]; ok {
		return p, true
	}
	var best ModelPrice
	found := false
	for name, p := range models {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best.Model) {
			best, found = p, true
		}
	}
	return best, found
}

// Calculate 计算成本，未知模型为 0
func (c *CostCalculator) Calculate(provider, model string, tokensInput, tokensOutput int) float64 {
	p, ok := c.Price(provider, model)
	if !ok {
		return 0
	}
	return (float64(tokensInput)*p.InputPerMTok + float64(tokensOutput)*p.OutputPerMTok) / 1e6
}

// ProviderUsage 单个 Provider 的累计用量
type ProviderUsage struct {
	Provider     string  `json:"provider"`
	RequestCount int     `json:"request_count"`
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	Cost         float64 `json:"cost"`
}

// CostSummary 成本汇总
type CostSummary struct {
	TotalCost       float64         `json:"total_cost"`
	TotalTokens     int             `json:"total_tokens"`
	TokensInput     int             `json:"tokens_input"`
	TokensOutput    int             `json:"tokens_output"`
	RequestCount    int             `json:"request_count"`
	AvgCostPerReq   float64         `json:"avg_cost_per_request"`
	AvgTokensPerReq float64         `json:"avg_tokens_per_request"`
	ByProvider      []ProviderUsage `json:"by_provider"`
}

// CostTracker 进程内累计的用量与成本
type CostTracker struct {
	calculator *CostCalculator
	mu         sync.Mutex
	total      CostSummary
	byProvider map[string]*ProviderUsage
}

// NewCostTracker 创建成本追踪器
func NewCostTracker(calculator *CostCalculator) *CostTracker {
	return &CostTracker{
		calculator: calculator,
		byProvider: make(map[string]*ProviderUsage),
	}
}

// Track 记录一次成功调用，返回其估算成本
func (t *CostTracker) Track(provider, model string, tokensInput, tokensOutput int) float64 {
	cost := t.calculator.Calculate(provider, model, tokensInput, tokensOutput)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.TotalCost += cost
	t.total.TokensInput += tokensInput
	t.total.TokensOutput += tokensOutput
	t.total.TotalTokens += tokensInput + tokensOutput
	t.total.RequestCount++

	pu, ok := t.byProvider[provider]
	if !ok {
		pu = &ProviderUsage{Provider: provider}
		t.byProvider[provider] = pu
	}
	pu.RequestCount++
	pu.TokensInput += tokensInput
	pu.TokensOutput += tokensOutput
	pu.Cost += cost

	return cost
}

// Summary 返回快照，ByProvider 按名称排序
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.total
	if s.RequestCount > 0 {
		s.AvgCostPerReq = s.TotalCost / float64(s.RequestCount)
		s.AvgTokensPerReq = float64(s.TotalTokens) / float64(s.RequestCount)
	}
	s.ByProvider = make([]ProviderUsage, 0, len(t.byProvider))
	for _, pu := range t.byProvider {
		s.ByProvider = append(s.ByProvider, *pu)
	}
	sort.Slice(s.ByProvider, func(i, j int) bool {
		return s.ByProvider[i].Provider < s.ByProvider[j].Provider
	})
	return s
}

// Reset 清空统计
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = CostSummary{}
	t.byProvider = make(map[string]*ProviderUsage)
}
