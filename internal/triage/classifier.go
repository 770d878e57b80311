// Package triage classifies emergency symptoms into severity, first-aid
// advice and a suggested department.
package triage

import (
	"context"
	"errors"
	"log"
	"strings"

	"rescueline/internal/domain"
)

// Classifier is the one-shot triage call, invoked exactly once per request
// at submission time.
type Classifier interface {
	Classify(ctx context.Context, symptoms string, conscious bool, profile *domain.PatientProfile) (domain.TriageResult, error)
}

var ErrEmptySymptoms = errors.New("symptoms must not be empty")

// FallbackAdvice is returned whenever classification fails. Assuming the
// worst case keeps the system from under-triaging on an outage.
const FallbackAdvice = "Stay calm and wait for help. Do not move the victim if trauma is suspected."

const FallbackDepartment = "General Emergency"

// Fallback is the fail-safe-to-worst-case result.
func Fallback() domain.TriageResult {
	return domain.TriageResult{
		Severity:   domain.SeverityHigh,
		Advice:     FallbackAdvice,
		Department: FallbackDepartment,
	}
}

// Safe wraps a classifier so that no failure ever reaches the caller: any
// transport error, empty payload, parse failure or out-of-range severity is
// replaced by the fallback result. Empty symptoms remain a caller error.
type Safe struct {
	Inner  Classifier
	Logger *log.Logger
}

func (s Safe) Classify(ctx context.Context, symptoms string, conscious bool, profile *domain.PatientProfile) (domain.TriageResult, error) {
	if strings.TrimSpace(symptoms) == "" {
		return domain.TriageResult{}, ErrEmptySymptoms
	}
	res, err := s.Inner.Classify(ctx, symptoms, conscious, profile)
	if err != nil {
		s.logf("triage: classifier failed, using fallback: %v", err)
		return Fallback(), nil
	}
	if !res.Severity.Valid() {
		s.logf("triage: classifier returned severity %q, using fallback", res.Severity)
		return Fallback(), nil
	}
	if res.Advice == "" {
		res.Advice = FallbackAdvice
	}
	if res.Department == "" {
		res.Department = FallbackDepartment
	}
	return res, nil
}

func (s Safe) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func medicalContext(profile *domain.PatientProfile) string {
	if profile == nil {
		return "No medical history available."
	}
	conditions := profile.MedicalConditions
	if conditions == "" {
		conditions = "none"
	}
	allergies := profile.Allergies
	if allergies == "" {
		allergies = "none"
	}
	var b strings.Builder
	b.WriteString("Known medical history: " + conditions + ". ")
	b.WriteString("Allergies: " + allergies + ".")
	if profile.DateOfBirth != "" {
		b.WriteString(" Date of birth: " + profile.DateOfBirth + ".")
	}
	return b.String()
}
