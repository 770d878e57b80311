package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rescueline/internal/domain"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultGeminiTimeout  = 20 * time.Second
)

// Gemini classifies symptoms via the generateContent REST API. Errors are
// returned as-is; wrap with Safe for the fallback policy.
type Gemini struct {
	APIKey   string
	Model    string
	Endpoint string
	Client   *http.Client
}

func NewGemini(apiKey string, model string) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		APIKey:   apiKey,
		Model:    model,
		Endpoint: defaultGeminiEndpoint,
		Client:   &http.Client{Timeout: defaultGeminiTimeout},
	}
}

type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type triagePayload struct {
	Severity   string `json:"severity"`
	Advice     string `json:"advice"`
	Department string `json:"department"`
}

func (g *Gemini) Classify(ctx context.Context, symptoms string, conscious bool, profile *domain.PatientProfile) (domain.TriageResult, error) {
	if g.APIKey == "" {
		return domain.TriageResult{}, fmt.Errorf("gemini: api key not configured")
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint(), g.model(), g.APIKey)

	payload := geminiGenerateRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: g.prompt(symptoms, conscious, profile)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.2,
			MaxOutputTokens:  512,
			ResponseMIMEType: "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TriageResult{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.TriageResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client().Do(req)
	if err != nil {
		return domain.TriageResult{}, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TriageResult{}, fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return domain.TriageResult{}, fmt.Errorf("gemini: %s (status %d)", apiErr.Error.Message, resp.StatusCode)
		}
		return domain.TriageResult{}, fmt.Errorf("gemini: status %d", resp.StatusCode)
	}

	var generated geminiGenerateResponse
	if err := json.Unmarshal(respBody, &generated); err != nil {
		return domain.TriageResult{}, fmt.Errorf("gemini: parse response: %w", err)
	}
	if generated.PromptFeedback != nil && generated.PromptFeedback.BlockReason != "" {
		return domain.TriageResult{}, fmt.Errorf("gemini: request blocked: %s", generated.PromptFeedback.BlockReason)
	}
	if len(generated.Candidates) == 0 || len(generated.Candidates[0].Content.Parts) == 0 {
		return domain.TriageResult{}, fmt.Errorf("gemini: empty response")
	}

	var tri triagePayload
	raw := extractJSON(generated.Candidates[0].Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(raw), &tri); err != nil {
		return domain.TriageResult{}, fmt.Errorf("gemini: triage payload is not valid JSON: %w", err)
	}
	return domain.TriageResult{
		Severity:   mapSeverity(tri.Severity),
		Advice:     tri.Advice,
		Department: tri.Department,
	}, nil
}

func (g *Gemini) prompt(symptoms string, conscious bool, profile *domain.PatientProfile) string {
	state := "conscious"
	if !conscious {
		state = "UNCONSCIOUS"
	}
	return fmt.Sprintf(`Act as an emergency medical triage system.
The victim is %s.
Reported symptoms: %q.
Additional patient context: %s

Consider the medical history and allergies in the severity assessment when relevant.
Classify the severity, give short and direct first-aid advice, and name the likely medical department.
Respond strictly as a JSON object: {"severity": "HIGH"|"MEDIUM"|"LOW", "advice": string, "department": string}.`,
		state, symptoms, medicalContext(profile))
}

// mapSeverity converts the model's string to the enum; anything unexpected
// reads as UNKNOWN rather than an error.
func mapSeverity(s string) domain.Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return domain.SeverityHigh
	case "MEDIUM":
		return domain.SeverityMedium
	case "LOW":
		return domain.SeverityLow
	default:
		return domain.SeverityUnknown
	}
}

// extractJSON strips markdown code fences the model sometimes wraps around
// JSON output.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") && strings.HasSuffix(text, "```") {
		return strings.TrimSpace(text[7 : len(text)-3])
	}
	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") {
		return strings.TrimSpace(text[3 : len(text)-3])
	}
	return text
}

func (g *Gemini) endpoint() string {
	if g.Endpoint != "" {
		return strings.TrimRight(g.Endpoint, "/")
	}
	return defaultGeminiEndpoint
}

func (g *Gemini) model() string {
	if g.Model != "" {
		return g.Model
	}
	return defaultGeminiModel
}

func (g *Gemini) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: defaultGeminiTimeout}
}
