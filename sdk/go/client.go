package rescuesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Rescueline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type TriageResult struct {
	Severity   string `json:"severity"`
	Advice     string `json:"advice"`
	Department string `json:"department"`
}

type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

type PatientProfile struct {
	FullName          string           `json:"full_name"`
	DateOfBirth       string           `json:"date_of_birth,omitempty"`
	Allergies         string           `json:"allergies,omitempty"`
	MedicalConditions string           `json:"medical_conditions,omitempty"`
	Contact           EmergencyContact `json:"contact"`
}

type VictimData struct {
	Name        string          `json:"name,omitempty"`
	Symptoms    string          `json:"symptoms"`
	Conscious   bool            `json:"conscious"`
	ProfileData *PatientProfile `json:"profile_data,omitempty"`
}

// RescueRequest represents the API request model.
type RescueRequest struct {
	ID         string        `json:"id"`
	Timestamp  int64         `json:"timestamp"`
	Victim     VictimData    `json:"victim"`
	Location   *Coordinates  `json:"location,omitempty"`
	Triage     *TriageResult `json:"triage,omitempty"`
	Status     string        `json:"status"`
	ETAMinutes int           `json:"eta_minutes"`
}

// SubmitOptions is the create-request payload.
type SubmitOptions struct {
	Name       string       `json:"name,omitempty"`
	Symptoms   string       `json:"symptoms"`
	Conscious  *bool        `json:"conscious,omitempty"`
	UseProfile bool         `json:"use_profile,omitempty"`
	Location   *Coordinates `json:"location,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Auth exchanges the responder access code for a session token and stores it
// on the client for subsequent responder calls.
func (c *Client) Auth(ctx context.Context, accessCode string) (string, error) {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	body := map[string]any{"access_code": accessCode}
	if err := c.do(ctx, http.MethodPost, "v0/auth/responder", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// Submit creates a rescue request.
func (c *Client) Submit(ctx context.Context, opts SubmitOptions) (RescueRequest, error) {
	var resp RescueRequest
	err := c.do(ctx, http.MethodPost, "v0/requests", opts, &resp)
	return resp, err
}

// Active returns the active rescue request, or nil when none exists.
func (c *Client) Active(ctx context.Context) (*RescueRequest, error) {
	var resp RescueRequest
	err := c.do(ctx, http.MethodGet, "v0/requests/active", nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &resp, nil
}

// Arrive marks the request ARRIVED. Requires a responder token.
func (c *Client) Arrive(ctx context.Context, id string) (RescueRequest, error) {
	var resp RescueRequest
	endpoint := fmt.Sprintf("v0/requests/%s/arrive", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Complete marks the request COMPLETED. Requires a responder token.
func (c *Client) Complete(ctx context.Context, id string) (RescueRequest, error) {
	var resp RescueRequest
	endpoint := fmt.Sprintf("v0/requests/%s/complete", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// History lists past rescue requests, newest first.
func (c *Client) History(ctx context.Context) ([]RescueRequest, error) {
	var resp []RescueRequest
	err := c.do(ctx, http.MethodGet, "v0/history", nil, &resp)
	return resp, err
}

// Profile returns the saved patient profile, nil when none is saved.
func (c *Client) Profile(ctx context.Context) (*PatientProfile, error) {
	var resp struct {
		Profile *PatientProfile `json:"profile"`
	}
	err := c.do(ctx, http.MethodGet, "v0/profile", nil, &resp)
	return resp.Profile, err
}

// SaveProfile stores the patient profile.
func (c *Client) SaveProfile(ctx context.Context, p PatientProfile) (PatientProfile, error) {
	var resp struct {
		Profile PatientProfile `json:"profile"`
	}
	err := c.do(ctx, http.MethodPut, "v0/profile", p, &resp)
	return resp.Profile, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
