package server

import (
	"rescueline/internal/domain"
)

type ResponderLoginRequest struct {
	AccessCode string `json:"access_code" example:"1920"`
}

type ResponderLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type CreateRequestRequest struct {
	Name       string              `json:"name,omitempty"`
	Symptoms   string              `json:"symptoms"`
	Conscious  *bool               `json:"conscious,omitempty"`
	UseProfile bool                `json:"use_profile,omitempty"`
	Location   *domain.Coordinates `json:"location,omitempty"`
}

type RequestResponse struct {
	ID         string               `json:"id"`
	Timestamp  int64                `json:"timestamp"`
	Victim     domain.VictimData    `json:"victim"`
	Location   *domain.Coordinates  `json:"location,omitempty"`
	Triage     *domain.TriageResult `json:"triage,omitempty"`
	Status     domain.Status        `json:"status" enum:"PENDING,DISPATCHED,ARRIVED,COMPLETED"`
	ETAMinutes int                  `json:"eta_minutes"`
}

func requestResponse(r domain.RescueRequest) RequestResponse {
	return RequestResponse{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Victim:     r.Victim,
		Location:   r.Location,
		Triage:     r.Triage,
		Status:     r.Status,
		ETAMinutes: r.ETAMinutes,
	}
}

func mapRequests(items []domain.RescueRequest) []RequestResponse {
	res := make([]RequestResponse, 0, len(items))
	for _, r := range items {
		res = append(res, requestResponse(r))
	}
	return res
}

type ProfileResponse struct {
	Profile *domain.PatientProfile `json:"profile"`
}
