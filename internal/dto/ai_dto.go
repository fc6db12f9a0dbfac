package dto

import "github.com/shopspring/decimal"

type PricePredictionRequest struct {
	Category    string          `json:"category"`
	Condition   string          `json:"condition"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	UserPrice   decimal.Decimal `json:"user_price"`
}

type PricePrediction struct {
	Predicted  decimal.Decimal `json:"predicted"`
	Lower      decimal.Decimal `json:"lower"`
	Upper      decimal.Decimal `json:"upper"`
	Confidence string          `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
	Source     string          `json:"source"`
}

type PricePredictionResponse struct {
	Success    bool            `json:"success"`
	Category   string          `json:"category"`
	Condition  string          `json:"condition"`
	Prediction PricePrediction `json:"prediction"`
}

type DescribeRequest struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Condition   string `json:"condition"`
	Description string `json:"description"`
}

type DescribeResponse struct {
	Description string `json:"description"`
	Source      string `json:"source"`
}

type AnalyzeImageRequest struct {
	ImageBase64 string `json:"image_base64"`
	ImageURL    string `json:"image_url"`
}

type ImageAnalysis struct {
	Title        string `json:"title"`
	Category     string `json:"category"`
	Condition    string `json:"condition"`
	Description  string `json:"description"`
	IsLegitimate bool   `json:"is_legitimate"`
	Concerns     string `json:"concerns,omitempty"`
	Source       string `json:"source"`
}

type SmartSearchRequest struct {
	Query string `json:"query"`
}

// SearchParams are listing filters extracted from a free-text query.
type SearchParams struct {
	Keywords   []string         `json:"keywords"`
	Category   string           `json:"category,omitempty"`
	MinPrice   *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice   *decimal.Decimal `json:"max_price,omitempty"`
	Conditions []string         `json:"conditions,omitempty"`
	SortBy     string           `json:"sort_by"`
	Intent     string           `json:"intent"`
}

type SmartSearchResponse struct {
	Success       bool         `json:"success"`
	OriginalQuery string       `json:"original_query"`
	Params        SearchParams `json:"search_params"`
	Source        string       `json:"source"`
}

type SuggestMessageRequest struct {
	ListingTitle string `json:"listing_title"`
	Kind         string `json:"message_type"`
	Context      string `json:"context"`
}

type SuggestMessageResponse struct {
	Success     bool     `json:"success"`
	Suggestions []string `json:"suggestions"`
	Kind        string   `json:"message_type"`
	Source      string   `json:"source"`
}
