package handler

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/service"
	"github.com/segyhp/loan-tracker/pkg/response"
)

type AdminHandler struct {
	service   *service.AdminService
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewAdminHandler(service *service.AdminService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		service:   service,
		validator: newValidator(),
		log:       log.WithField("component", "admin_handler"),
	}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListUsers(r.Context(), page)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, user)
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateUserRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	user, err := h.service.UpdateUser(r.Context(), requestMeta(r), id, &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), requestMeta(r), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

func (h *AdminHandler) Impersonate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	resp, err := h.service.Impersonate(r.Context(), requestMeta(r), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

func (h *AdminHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	filter, ok := loanFilterFrom(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("owner_id"); raw != "" {
		owner, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid owner_id", err)
			return
		}
		filter.OwnerID = &owner
	}

	resp, err := h.service.ListAllLoans(r.Context(), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

func (h *AdminHandler) CreateLoanForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.CreateLoanRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	loan, err := h.service.CreateLoanForUser(r.Context(), requestMeta(r), userID, &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, loan)
}

func (h *AdminHandler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateLoanRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	loan, err := h.service.UpdateAnyLoan(r.Context(), requestMeta(r), id, &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, loan)
}

func (h *AdminHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteAnyLoan(r.Context(), requestMeta(r), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.AuditFilter{
		ActorID:    q.Get("actor_id"),
		Action:     domain.AuditAction(strings.ToUpper(q.Get("action"))),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
		Page:       page,
	}

	resp, err := h.service.ListAuditLogs(r.Context(), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

// RunNotifications triggers the notification generator outside the daily schedule
func (h *AdminHandler) RunNotifications(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunNotifications(r.Context(), requestMeta(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, report)
}
