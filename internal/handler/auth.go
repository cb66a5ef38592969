package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/service"
	"github.com/segyhp/loan-tracker/pkg/response"
)

type AuthHandler struct {
	service   *service.AuthService
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewAuthHandler(service *service.AuthService, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: newValidator(),
		log:       log.WithField("component", "auth_handler"),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

// Me returns the authenticated user, with the impersonating admin when present
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	user, err := h.service.Me(r.Context(), actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"user":            user,
		"impersonated_by": actor.ImpersonatedBy,
	})
}
