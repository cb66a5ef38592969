package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/service"
	"github.com/segyhp/loan-tracker/pkg/response"
)

type LoanHandler struct {
	service   *service.LoanService
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewLoanHandler(service *service.LoanService, log logrus.FieldLogger) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
		log:       log.WithField("component", "loan_handler"),
	}
}

func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := loanFilterFrom(w, r)
	if !ok {
		return
	}

	resp, err := h.service.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLoanRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	loan, err := h.service.Create(r.Context(), actorFrom(r), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, loan)
}

func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	loan, err := h.service.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateLoanRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	loan, err := h.service.Update(r.Context(), actorFrom(r), id, &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

func (h *LoanHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	loan, err := h.service.Complete(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, history)
}

func (h *LoanHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, summary)
}

// Export streams the caller's loans as csv, pdf or xml
func (h *LoanHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, ok := loanFilterFrom(w, r)
	if !ok {
		return
	}

	result, err := h.service.Export(r.Context(), actorFrom(r), r.URL.Query().Get("format"), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.File(w, result.Format.ContentType(), result.FileName, result.Data)
}
