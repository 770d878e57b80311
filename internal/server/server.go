// Package server exposes the rescue-request API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"rescueline/internal/domain"
	"rescueline/internal/engine"
	"rescueline/internal/patient"
	"rescueline/internal/store"
	"rescueline/internal/triage"
)

// Config for the HTTP API handler.
type Config struct {
	Engine       engine.Engine
	Store        store.Store
	Classifier   triage.Classifier
	BasePath     string
	Auth         AuthConfig
	PollInterval time.Duration
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"active_conflict"`
	Message string         `json:"message" example:"an active rescue request already exists"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Rescueline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	pc := &patient.Controller{
		Store:      cfg.Store,
		Engine:     cfg.Engine,
		Classifier: cfg.Classifier,
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(cfg.Auth))
	hcfg := huma.DefaultConfig("Rescueline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Auth, cfg.Engine)
	registerRequests(group, cfg.Engine, cfg.Store, pc)
	registerHistory(group, pc)
	registerProfile(group, pc)
	registerWatch(router, basePath, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrActiveRequest):
		return newAPIError(http.StatusConflict, "active_conflict", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidTransition):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	case errors.Is(err, engine.ErrNoActiveRequest):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, triage.ErrEmptySymptoms):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, cfg AuthConfig, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "responder-login",
		Method:      http.MethodPost,
		Path:        "/auth/responder",
		Summary:     "Exchange the responder access code for a session token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ResponderLoginRequest `json:"body"`
	}) (*struct {
		Body ResponderLoginResponse `json:"body"`
	}, error) {
		if !accessCodeMatches(cfg, input.Body.AccessCode) {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid access code", nil)
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		token, expires, err := issueResponderToken(cfg, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResponderLoginResponse `json:"body"`
		}{Body: ResponderLoginResponse{
			Token:     token,
			ExpiresAt: expires.UTC().Format(time.RFC3339),
		}}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine, st store.Store, pc *patient.Controller) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Submit a rescue request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRequestRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Symptoms) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "symptoms are required", nil)
		}
		conscious := true
		if input.Body.Conscious != nil {
			conscious = *input.Body.Conscious
		}
		req, err := pc.Submit(ctx, patient.SubmitOptions{
			Name:       input.Body.Name,
			Symptoms:   input.Body.Symptoms,
			Conscious:  conscious,
			UseProfile: input.Body.UseProfile,
			Location:   input.Body.Location,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-request",
		Method:      http.MethodGet,
		Path:        "/requests/active",
		Summary:     "Get the active rescue request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := store.LoadRequest(ctx, st)
		if err != nil {
			return nil, handleError(err)
		}
		if req == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no active rescue request", nil)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(*req)}, nil
	})

	registerAdvance(api, e, "arrive-request", "/requests/{id}/arrive", "Mark the responder as arrived", domain.StatusArrived)
	registerAdvance(api, e, "complete-request", "/requests/{id}/complete", "Mark the rescue as completed", domain.StatusCompleted)
}

func registerAdvance(api huma.API, e engine.Engine, opID, path, summary string, status domain.Status) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		if authErr := requireResponder(ctx); authErr != nil {
			return nil, authErr
		}
		req, err := e.Advance(ctx, input.ID, status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})
}

func registerHistory(api huma.API, pc *patient.Controller) {
	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "List past rescue requests, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []RequestResponse `json:"body"`
	}, error) {
		items, err := pc.History(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RequestResponse `json:"body"`
		}{Body: mapRequests(items)}, nil
	})
}

func registerProfile(api huma.API, pc *patient.Controller) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile",
		Summary:     "Get the patient profile",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		p, err := pc.Profile(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: ProfileResponse{Profile: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-profile",
		Method:      http.MethodPut,
		Path:        "/profile",
		Summary:     "Save the patient profile",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.PatientProfile `json:"body"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.FullName) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "full_name is required", nil)
		}
		if err := pc.SaveProfile(ctx, input.Body); err != nil {
			return nil, handleError(err)
		}
		p := input.Body
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: ProfileResponse{Profile: &p}}, nil
	})
}
