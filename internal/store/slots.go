package store

import (
	"context"
	"encoding/json"
	"log"

	"rescueline/internal/domain"
)

// Typed slot accessors. A slot that is absent or fails to parse reads as "no
// data present"; corruption is logged, never fatal.

func LoadRequest(ctx context.Context, s Store) (*domain.RescueRequest, error) {
	raw, ok, err := s.Get(ctx, KeyActiveRequest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var req domain.RescueRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("store: discarding corrupt %s slot: %v", KeyActiveRequest, err)
		return nil, nil
	}
	return &req, nil
}

func SaveRequest(ctx context.Context, s Store, req domain.RescueRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.Set(ctx, KeyActiveRequest, raw)
}

func ClearRequest(ctx context.Context, s Store) error {
	return s.Delete(ctx, KeyActiveRequest)
}

func LoadHistory(ctx context.Context, s Store) ([]domain.RescueRequest, error) {
	raw, ok, err := s.Get(ctx, KeyHistory)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var history []domain.RescueRequest
	if err := json.Unmarshal(raw, &history); err != nil {
		log.Printf("store: discarding corrupt %s slot: %v", KeyHistory, err)
		return nil, nil
	}
	return history, nil
}

func SaveHistory(ctx context.Context, s Store, history []domain.RescueRequest) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.Set(ctx, KeyHistory, raw)
}

func LoadProfile(ctx context.Context, s Store) (*domain.PatientProfile, error) {
	raw, ok, err := s.Get(ctx, KeyProfile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var p domain.PatientProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("store: discarding corrupt %s slot: %v", KeyProfile, err)
		return nil, nil
	}
	return &p, nil
}

func SaveProfile(ctx context.Context, s Store, p domain.PatientProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Set(ctx, KeyProfile, raw)
}
