package triage

import (
	"context"
	"strings"

	"rescueline/internal/domain"
)

// Rules is the offline keyword classifier used when no Gemini key is
// configured. It never errors; ambiguous input reads as UNKNOWN and the Safe
// wrapper's defaults fill in the advice.
type Rules struct{}

var highKeywords = []string{
	"not breathing", "heart attack", "stroke", "unconscious", "severe bleeding",
	"choking", "drowning", "seizure", "anaphylaxis", "overdose", "chest pain",
}

var mediumKeywords = []string{
	"broken bone", "fracture", "deep cut", "burn", "concussion", "severe pain",
	"high fever", "difficulty breathing", "allergic reaction", "dizziness",
}

var lowKeywords = []string{
	"minor cut", "sprain", "mild fever", "rash", "cold symptoms",
	"ear pain", "sore throat", "minor burn", "headache", "nausea",
}

func (Rules) Classify(_ context.Context, symptoms string, conscious bool, _ *domain.PatientProfile) (domain.TriageResult, error) {
	if !conscious {
		return domain.TriageResult{
			Severity:   domain.SeverityHigh,
			Advice:     "Check breathing and pulse. Place the victim in the recovery position if breathing.",
			Department: "Emergency Medicine",
		}, nil
	}
	text := strings.ToLower(symptoms)
	switch {
	case matchesAny(text, highKeywords):
		return domain.TriageResult{
			Severity:   domain.SeverityHigh,
			Advice:     "Keep the victim still and monitor breathing until responders arrive.",
			Department: "Emergency Medicine",
		}, nil
	case matchesAny(text, mediumKeywords):
		return domain.TriageResult{
			Severity:   domain.SeverityMedium,
			Advice:     "Keep the victim comfortable and avoid food or drink until assessed.",
			Department: "Urgent Care",
		}, nil
	case matchesAny(text, lowKeywords):
		return domain.TriageResult{
			Severity:   domain.SeverityLow,
			Advice:     "Rest and monitor the symptoms; seek care if they worsen.",
			Department: "General Practice",
		}, nil
	}
	return domain.TriageResult{
		Severity:   domain.SeverityUnknown,
		Advice:     "",
		Department: "",
	}, nil
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
