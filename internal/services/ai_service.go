package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/shopspring/decimal"
)

var ErrAIUnavailable = apperr.New(apperr.KindDependencyFailure, "AI service is unavailable, please try again later")

const (
	SourceFallback = "fallback"
	maxImageBytes  = 8 << 20
)

// conditionMultipliers estimate resale value as a share of the price the
// seller entered.
var conditionMultipliers = map[string]decimal.Decimal{
	"New":      decimal.RequireFromString("0.95"),
	"Like New": decimal.RequireFromString("0.80"),
	"Good":     decimal.RequireFromString("0.60"),
	"Fair":     decimal.RequireFromString("0.40"),
	"Poor":     decimal.RequireFromString("0.25"),
}

type aiProvider struct {
	name   string
	url    string
	key    string
	model  string
	vision bool
}

type AIService struct {
	providers []aiProvider
	client    *http.Client
}

func NewAIService(cfg *config.Config) *AIService {
	timeout := cfg.AITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AIService{
		providers: []aiProvider{
			{name: "glm", url: cfg.GLMAPIURL, key: cfg.GLMAPIKey, model: cfg.GLMModel},
			{name: "glm-vision", url: cfg.GLMAPIURL, key: cfg.GLMAPIKey, model: cfg.GLMVisionModel, vision: true},
			{name: "deepseek", url: cfg.DeepSeekAPIURL, key: cfg.DeepSeekAPIKey, model: cfg.DeepSeekModel},
			{name: "openai", url: cfg.OpenAIAPIURL, key: cfg.OpenAIAPIKey, model: cfg.OpenAIModel, vision: true},
		},
		client: &http.Client{Timeout: timeout},
	}
}

// --- chat completion wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete tries each configured provider in order and returns the first
// answer with the provider's name.
func (s *AIService) complete(ctx context.Context, messages []chatMessage, vision bool, temperature float64) (string, string, error) {
	var lastErr error = errors.New("no AI provider configured")
	for _, p := range s.providers {
		if p.key == "" || p.url == "" || p.vision != vision {
			continue
		}
		content, err := s.callProvider(ctx, p, messages, temperature)
		if err == nil {
			return content, p.name, nil
		}
		slog.Warn("AI provider failed, trying next", "provider", p.name, "error", err)
		lastErr = err
	}
	return "", "", fmt.Errorf("all AI providers failed: %w", lastErr)
}

func (s *AIService) callProvider(ctx context.Context, p aiProvider, messages []chatMessage, temperature float64) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty response from API")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty response from API")
	}
	return content, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// --- price prediction ---

const pricePrompt = `You are a pricing assistant for a campus second-hand marketplace.
Estimate a fair resale price for the item below from typical second-hand listings for
similar products and condition-based depreciation (New 85-95%%, Like New 65-80%%,
Good 45-65%%, Fair 30-45%%, Poor 15-30%% of current retail).

Category: %s
Condition: %s
Title: %s
Description: %s
Seller's reference price: %s

Return ONLY valid JSON:
{"predicted": <integer>, "lower": <integer>, "upper": <integer>, "confidence": "high|medium|low", "reasoning": "<2-3 sentences>"}`

type llmPrice struct {
	Predicted  float64 `json:"predicted"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence string  `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// PredictPrice asks the provider chain for a price range and falls back to
// condition multipliers over the seller's price when no provider answers.
func (s *AIService) PredictPrice(ctx context.Context, req *dto.PricePredictionRequest) (*dto.PricePredictionResponse, error) {
	if !contains(models.Categories, req.Category) {
		return nil, apperr.InvalidArgument("unknown category")
	}
	if !contains(models.Conditions, req.Condition) {
		return nil, apperr.InvalidArgument("unknown condition")
	}
	if req.UserPrice.IsNegative() {
		return nil, apperr.InvalidArgument("user_price must not be negative")
	}

	prompt := fmt.Sprintf(pricePrompt, req.Category, req.Condition, req.Title, req.Description, req.UserPrice.String())
	content, source, err := s.complete(ctx, []chatMessage{{Role: "user", Content: prompt}}, false, 0.3)

	var prediction dto.PricePrediction
	if err == nil {
		prediction, err = parsePrice(content)
		prediction.Source = source
	}
	if err != nil {
		slog.Warn("price prediction using fallback", "error", err)
		prediction = FallbackPrice(req.Condition, req.UserPrice)
	}

	return &dto.PricePredictionResponse{
		Success:    true,
		Category:   req.Category,
		Condition:  req.Condition,
		Prediction: prediction,
	}, nil
}

func parsePrice(content string) (dto.PricePrediction, error) {
	var p llmPrice
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &p); err != nil {
		return dto.PricePrediction{}, fmt.Errorf("failed to parse price response: %w", err)
	}

	predicted := decimal.NewFromFloat(p.Predicted).Floor()
	lower := decimal.NewFromFloat(p.Lower).Floor()
	upper := decimal.NewFromFloat(p.Upper).Floor()
	if lower.IsZero() {
		lower = predicted.Mul(decimal.RequireFromString("0.8")).Floor()
	}
	if upper.IsZero() {
		upper = predicted.Mul(decimal.RequireFromString("1.2")).Floor()
	}
	if predicted.LessThan(decimal.NewFromInt(10)) {
		predicted, lower, upper = decimal.NewFromInt(10), decimal.NewFromInt(10), decimal.NewFromInt(50)
	}
	confidence := p.Confidence
	if confidence == "" {
		confidence = "high"
	}
	reasoning := p.Reasoning
	if reasoning == "" {
		reasoning = "AI-based market analysis"
	}
	return dto.PricePrediction{
		Predicted:  predicted,
		Lower:      lower,
		Upper:      upper,
		Confidence: confidence,
		Reasoning:  reasoning,
	}, nil
}

// FallbackPrice treats userPrice as the retail price and discounts it by the
// condition multiplier (Good when the condition is unknown).
func FallbackPrice(condition string, userPrice decimal.Decimal) dto.PricePrediction {
	if !userPrice.IsPositive() {
		return dto.PricePrediction{
			Predicted:  decimal.Zero,
			Lower:      decimal.Zero,
			Upper:      decimal.Zero,
			Confidence: "none",
			Reasoning:  "Unable to predict a price without market data. Enter your expected price to get an estimate.",
			Source:     SourceFallback,
		}
	}

	mult, ok := conditionMultipliers[condition]
	if !ok {
		mult = conditionMultipliers["Good"]
	}
	predicted := userPrice.Mul(mult).Floor()
	return dto.PricePrediction{
		Predicted:  predicted,
		Lower:      predicted.Mul(decimal.RequireFromString("0.85")).Floor(),
		Upper:      predicted.Mul(decimal.RequireFromString("1.15")).Floor(),
		Confidence: "low",
		Reasoning:  fmt.Sprintf("Estimated from your price adjusted for %s condition.", condition),
		Source:     SourceFallback,
	}
}

func (s *AIService) PriceCategories() dto.CategoriesResponse {
	return dto.CategoriesResponse{Categories: models.Categories, Conditions: models.Conditions}
}

// --- description enhancement ---

const describePrompt = `Rewrite this campus marketplace listing description so it is clear, honest and
appealing to students. Keep it under 120 words, keep every fact, invent nothing, no markdown.

Title: %s
Category: %s
Condition: %s
Description: %s`

func (s *AIService) Describe(ctx context.Context, req *dto.DescribeRequest) (*dto.DescribeResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.InvalidArgument("title is required")
	}
	prompt := fmt.Sprintf(describePrompt, req.Title, req.Category, req.Condition, req.Description)
	content, source, err := s.complete(ctx, []chatMessage{{Role: "user", Content: prompt}}, false, 0.7)
	if err != nil {
		slog.Error("description enhancement failed", "action", "ai_describe", "error", err)
		return nil, ErrAIUnavailable
	}
	return &dto.DescribeResponse{Description: stripCodeFence(content), Source: source}, nil
}

// --- image analysis ---

const imagePrompt = `Analyze this product image for a campus marketplace listing.
Return ONLY valid JSON:
{"title": "<short title>", "category": "<one of Books, Electronics, Furniture, Clothing, Sports, Stationery, Other>",
"condition": "<one of New, Like New, Good, Fair, Poor>", "description": "<2-3 sentences>",
"is_legitimate": true, "concerns": "<empty, or why the item looks prohibited or fake>"}`

func (s *AIService) AnalyzeImage(ctx context.Context, req *dto.AnalyzeImageRequest) (*dto.ImageAnalysis, error) {
	imgURL := strings.TrimSpace(req.ImageURL)
	if data := strings.TrimSpace(req.ImageBase64); data != "" {
		if len(data) > maxImageBytes {
			return nil, apperr.InvalidArgument("image is too large")
		}
		if strings.HasPrefix(data, "data:") {
			imgURL = data
		} else {
			imgURL = "data:image/jpeg;base64," + data
		}
	}
	if imgURL == "" {
		return nil, apperr.InvalidArgument("image_base64 or image_url is required")
	}

	messages := []chatMessage{{Role: "user", Content: []chatContentPart{
		{Type: "text", Text: imagePrompt},
		{Type: "image_url", ImageURL: &chatImageURL{URL: imgURL, Detail: "auto"}},
	}}}
	content, source, err := s.complete(ctx, messages, true, 0.2)
	if err != nil {
		slog.Error("image analysis failed", "action", "ai_analyze_image", "error", err)
		return nil, ErrAIUnavailable
	}

	var analysis dto.ImageAnalysis
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &analysis); err != nil {
		slog.Error("image analysis unparseable", "action", "ai_analyze_image", "error", err)
		return nil, ErrAIUnavailable
	}
	if !contains(models.Categories, analysis.Category) {
		analysis.Category = "Other"
	}
	if !contains(models.Conditions, analysis.Condition) {
		analysis.Condition = "Good"
	}
	analysis.Source = source
	return &analysis, nil
}

// --- smart search ---

const maxSearchQuery = 200

const searchPrompt = `Interpret this campus marketplace search query and extract filters.

Query: %q
Categories: %s
Conditions: %s

Return ONLY valid JSON:
{"keywords": ["word"], "category": "<category or null>", "price_range": {"min": <number or null>, "max": <number or null>},
"conditions": ["<condition>"], "sort_by": "relevance|price|date|popularity", "intent": "buying|browsing|specific_item"}`

var (
	searchSorts   = []string{"relevance", "price", "date", "popularity"}
	searchIntents = []string{"buying", "browsing", "specific_item"}
)

type llmSearch struct {
	Keywords   []string `json:"keywords"`
	Category   string   `json:"category"`
	PriceRange *struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	} `json:"price_range"`
	Conditions []string `json:"conditions"`
	SortBy     string   `json:"sort_by"`
	Intent     string   `json:"intent"`
}

// SmartSearch turns a natural-language query into listing filters. Values
// outside the marketplace vocabulary are dropped, and keyword extraction
// stands in when no provider answers.
func (s *AIService) SmartSearch(ctx context.Context, req *dto.SmartSearchRequest) (*dto.SmartSearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.InvalidArgument("search query is required")
	}
	if utf8.RuneCountInString(query) > maxSearchQuery {
		return nil, apperr.InvalidArgument("search query must be at most 200 characters")
	}

	prompt := fmt.Sprintf(searchPrompt, query, strings.Join(models.Categories, ", "), strings.Join(models.Conditions, ", "))
	content, source, err := s.complete(ctx, []chatMessage{{Role: "user", Content: prompt}}, false, 0.2)

	var params dto.SearchParams
	if err == nil {
		params, err = parseSearch(content)
	}
	if err != nil {
		slog.Warn("smart search using keyword fallback", "error", err)
		params, source = FallbackSearch(query), SourceFallback
	}

	return &dto.SmartSearchResponse{
		Success:       true,
		OriginalQuery: query,
		Params:        params,
		Source:        source,
	}, nil
}

func parseSearch(content string) (dto.SearchParams, error) {
	var raw llmSearch
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &raw); err != nil {
		return dto.SearchParams{}, fmt.Errorf("failed to parse search response: %w", err)
	}

	params := dto.SearchParams{
		Category: canonical(models.Categories, raw.Category),
		SortBy:   canonical(searchSorts, raw.SortBy),
		Intent:   canonical(searchIntents, raw.Intent),
	}
	for _, k := range raw.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			params.Keywords = append(params.Keywords, k)
		}
	}
	for _, c := range raw.Conditions {
		if c = canonical(models.Conditions, c); c != "" {
			params.Conditions = append(params.Conditions, c)
		}
	}
	if raw.PriceRange != nil {
		if raw.PriceRange.Min != nil && *raw.PriceRange.Min > 0 {
			v := decimal.NewFromFloat(*raw.PriceRange.Min)
			params.MinPrice = &v
		}
		if raw.PriceRange.Max != nil && *raw.PriceRange.Max > 0 {
			v := decimal.NewFromFloat(*raw.PriceRange.Max)
			params.MaxPrice = &v
		}
		if params.MinPrice != nil && params.MaxPrice != nil && params.MinPrice.GreaterThan(*params.MaxPrice) {
			params.MinPrice, params.MaxPrice = params.MaxPrice, params.MinPrice
		}
	}
	if params.SortBy == "" {
		params.SortBy = "relevance"
	}
	if params.Intent == "" {
		params.Intent = "browsing"
	}
	if params.Keywords == nil {
		params.Keywords = []string{}
	}
	return params, nil
}

// FallbackSearch keeps every word longer than two characters as a keyword.
func FallbackSearch(query string) dto.SearchParams {
	keywords := []string{}
	for _, w := range strings.Fields(query) {
		if utf8.RuneCountInString(w) > 2 {
			keywords = append(keywords, w)
		}
	}
	return dto.SearchParams{Keywords: keywords, SortBy: "relevance", Intent: "browsing"}
}

// canonical returns the vocabulary entry equal to v ignoring case, or "".
func canonical(vocab []string, v string) string {
	v = strings.TrimSpace(v)
	for _, c := range vocab {
		if strings.EqualFold(c, v) {
			return c
		}
	}
	return ""
}

// --- message suggestions ---

const (
	SuggestInitial     = "initial"
	SuggestNegotiation = "negotiation"
	SuggestPurchase    = "purchase"
	SuggestMeetup      = "meetup"

	maxSuggestions = 3
)

var suggestPrompts = map[string]string{
	SuggestInitial:     "Suggest 3 friendly, respectful opening messages asking a student seller about %q.",
	SuggestNegotiation: "Suggest 3 polite price negotiation messages for %q. Context: %s",
	SuggestPurchase:    "Suggest 3 messages expressing serious intent to buy %q.",
	SuggestMeetup:      "Suggest 3 messages arranging a safe on-campus meetup to view or buy %q.",
}

var fallbackSuggestions = map[string][]string{
	SuggestInitial: {
		"Hi! Is the %s still available?",
		"Hey, I'm interested in the %s. Could you tell me a bit more about its condition?",
		"Hi there, I saw your listing for the %s. Any chance I could see it this week?",
	},
	SuggestNegotiation: {
		"Hi! Would you consider a slightly lower price for the %s?",
		"I'm really interested in the %s. Is the price negotiable at all?",
		"Would you accept a bit less for the %s if I can pick it up today?",
	},
	SuggestPurchase: {
		"I'd like to buy the %s. When would suit you?",
		"The %s is exactly what I need. Can we make it happen this week?",
		"I'm ready to take the %s at your asking price.",
	},
	SuggestMeetup: {
		"Could we meet at the library entrance to check out the %s?",
		"Would the student centre work for handing over the %s?",
		"I'm on campus most afternoons. Is there a good time to meet for the %s?",
	},
}

var suggestionPrefix = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

const suggestSystem = "Write natural, friendly messages between students on a campus marketplace. Avoid formal or robotic language. One message per line, no commentary."

// SuggestMessage drafts up to three chat messages for a listing. Unknown
// kinds are treated as "initial", and canned drafts are used when no
// provider answers.
func (s *AIService) SuggestMessage(ctx context.Context, req *dto.SuggestMessageRequest) (*dto.SuggestMessageResponse, error) {
	title := strings.TrimSpace(req.ListingTitle)
	if title == "" {
		return nil, apperr.InvalidArgument("listing_title is required")
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if _, ok := suggestPrompts[kind]; !ok {
		kind = SuggestInitial
	}

	var prompt string
	if kind == SuggestNegotiation {
		prompt = fmt.Sprintf(suggestPrompts[kind], title, truncate(strings.TrimSpace(req.Context), 300))
	} else {
		prompt = fmt.Sprintf(suggestPrompts[kind], title)
	}
	content, source, err := s.complete(ctx, []chatMessage{
		{Role: "system", Content: suggestSystem},
		{Role: "user", Content: prompt},
	}, false, 0.8)

	var suggestions []string
	if err == nil {
		suggestions = parseSuggestions(content)
		if len(suggestions) == 0 {
			err = errors.New("no suggestions in response")
		}
	}
	if err != nil {
		slog.Warn("message suggestions using fallback", "error", err)
		suggestions, source = FallbackSuggestions(kind, title), SourceFallback
	}

	return &dto.SuggestMessageResponse{
		Success:     true,
		Suggestions: suggestions,
		Kind:        kind,
		Source:      source,
	}, nil
}

func parseSuggestions(content string) []string {
	var out []string
	for _, line := range strings.Split(stripCodeFence(content), "\n") {
		line = suggestionPrefix.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"`)
		// Skip empty lines and lead-ins such as "Here are some options:".
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		out = append(out, line)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func FallbackSuggestions(kind, title string) []string {
	templates, ok := fallbackSuggestions[kind]
	if !ok {
		templates = fallbackSuggestions[SuggestInitial]
	}
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = fmt.Sprintf(t, title)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
