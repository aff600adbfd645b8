package observability

import (
	"sync"
)

// ModelPrice 模型价格（USD per token）
type ModelPrice struct {
	Model          string  `json:"model" yaml:"model"`
	InputPerToken  float64 `json:"input_per_token" yaml:"input_per_token"`
	OutputPerToken float64 `json:"output_per_token" yaml:"output_per_token"`
}

// AveragePerToken 返回输入与输出单价的平均值。
func (p ModelPrice) AveragePerToken() float64 {
	return (p.InputPerToken + p.OutputPerToken) / 2
}

// CostCalculator 成本计算器，按模型 ID 查价
type CostCalculator struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// NewCostCalculator 创建带默认价格表的成本计算器
func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{
		prices: make(map[string]ModelPrice),
	}
	c.loadDefaultPrices()
	return c
}

// NewEmptyCostCalculator 创建空价格表
func NewEmptyCostCalculator() *CostCalculator {
	return &CostCalculator{prices: make(map[string]ModelPrice)}
}

// loadDefaultPrices 默认价格按厂商公布的每 1K token 价格录入
func (c *CostCalculator) loadDefaultPrices() {
	per1K := []struct {
		model   string
		in, out float64
	}{
		// OpenAI
		{"gpt-4o", 0.005, 0.015},
		{"gpt-4o-mini", 0.00015, 0.0006},
		{"gpt-4-turbo", 0.01, 0.03},
		{"gpt-3.5-turbo", 0.0005, 0.0015},
		// Claude
		{"claude-3-5-sonnet-20241022", 0.003, 0.015},
		{"claude-3-opus-20240229", 0.015, 0.075},
		{"claude-3-haiku-20240307", 0.00025, 0.00125},
		// Gemini
		{"gemini-1.5-pro", 0.00125, 0.005},
		{"gemini-1.5-flash", 0.000075, 0.0003},
		// 通义千问
		{"qwen-turbo", 0.0008, 0.002},
		{"qwen-plus", 0.004, 0.012},
		// 智谱 GLM
		{"glm-4", 0.014, 0.014},
		{"glm-4-flash", 0.0001, 0.0001},
	}
	for _, p := range per1K {
		c.SetPricePer1K(p.model, p.in, p.out)
	}
}

// SetPrice 设置模型每 token 单价
func (c *CostCalculator) SetPrice(model string, inputPerToken, outputPerToken float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[model] = ModelPrice{
		Model:          model,
		InputPerToken:  inputPerToken,
		OutputPerToken: outputPerToken,
	}
}

// SetPricePer1K 以每 1K token 价格设置
func (c *CostCalculator) SetPricePer1K(model string, inputPer1K, outputPer1K float64) {
	c.SetPrice(model, inputPer1K/1000, outputPer1K/1000)
}

// GetPrice 获取模型价格
func (c *CostCalculator) GetPrice(model string) (ModelPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[model]
	return p, ok
}

// Estimate 计算 tokens * avg(input, output)；未知模型返回 (0, false)
func (c *CostCalculator) Estimate(model string, tokens int) (float64, bool) {
	price, ok := c.GetPrice(model)
	if !ok {
		return 0, false
	}
	return float64(tokens) * price.AveragePerToken(), true
}

// UpdatePrices 批量更新价格（每 token 单价）
func (c *CostCalculator) UpdatePrices(prices []ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range prices {
		c.prices[p.Model] = p
	}
}
