package handler

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/service"
	"github.com/segyhp/loan-tracker/pkg/response"
)

type NotificationHandler struct {
	service *service.NotificationService
	log     logrus.FieldLogger
}

func NewNotificationHandler(service *service.NotificationService, log logrus.FieldLogger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		log:     log.WithField("component", "notification_handler"),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(w, r)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	resp, err := h.service.List(r.Context(), actorFrom(r), unreadOnly, page)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, resp)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadCount(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, domain.UnreadCountResponse{Unread: count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	n, err := h.service.MarkRead(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.MarkAllRead(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Success(w, map[string]int64{"updated": updated})
}
