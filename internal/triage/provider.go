package triage

import (
	"log"

	"rescueline/internal/config"
)

// FromConfig picks the classifier for the configured provider and wraps it in
// the fail-safe layer. "auto" means Gemini when a key is present, Rules
// otherwise.
func FromConfig(cfg *config.Config, logger *log.Logger) Safe {
	var inner Classifier = Rules{}
	if cfg != nil {
		switch cfg.Triage.Provider {
		case "gemini":
			inner = NewGemini(cfg.Triage.GeminiAPIKey, cfg.Triage.GeminiModel)
		case "rules":
			inner = Rules{}
		default: // auto
			if cfg.Triage.GeminiAPIKey != "" {
				inner = NewGemini(cfg.Triage.GeminiAPIKey, cfg.Triage.GeminiModel)
			}
		}
	}
	return Safe{Inner: inner, Logger: logger}
}
