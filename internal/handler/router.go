package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/pkg/response"
)

// RouterOptions tunes request handling that depends on the deployment
type RouterOptions struct {
	// TrustProxy takes client addresses from X-Forwarded-For
	TrustProxy bool
}

type Handlers struct {
	Auth          *AuthHandler
	Loans         *LoanHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
	Health        *HealthHandler
}

// NewRouter wires every route. Everything under /api/v1 except auth goes
// through JWT authentication and RBAC.
func NewRouter(h Handlers, authn Authenticator, enforcer Enforcer, opts RouterOptions, log logrus.FieldLogger) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})
	router.Use(RealIPMiddleware(opts.TrustProxy), AccessLogMiddleware(log.WithField("component", "http")))

	// Health check
	router.HandleFunc("/health", h.Health.Health).Methods("GET")
	router.HandleFunc("/health/ready", h.Health.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", h.Auth.Register).Methods("POST")
	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST")

	protected := api.NewRoute().Subrouter()
	protected.Use(JWTMiddleware(authn, log), RBACMiddleware(enforcer, log))

	protected.HandleFunc("/me", h.Auth.Me).Methods("GET")

	// static loan paths before {id}
	protected.HandleFunc("/loans", h.Loans.List).Methods("GET")
	protected.HandleFunc("/loans", h.Loans.Create).Methods("POST")
	protected.HandleFunc("/loans/summary", h.Loans.Summary).Methods("GET")
	protected.HandleFunc("/loans/export", h.Loans.Export).Methods("GET")
	protected.HandleFunc("/loans/{id}", h.Loans.Get).Methods("GET")
	protected.HandleFunc("/loans/{id}", h.Loans.Update).Methods("PUT")
	protected.HandleFunc("/loans/{id}", h.Loans.Delete).Methods("DELETE")
	protected.HandleFunc("/loans/{id}/complete", h.Loans.Complete).Methods("POST")
	protected.HandleFunc("/loans/{id}/history", h.Loans.History).Methods("GET")

	protected.HandleFunc("/notifications", h.Notifications.List).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", h.Notifications.UnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/read-all", h.Notifications.MarkAllRead).Methods("POST")
	protected.HandleFunc("/notifications/{id}/read", h.Notifications.MarkRead).Methods("POST")

	protected.HandleFunc("/admin/users", h.Admin.ListUsers).Methods("GET")
	protected.HandleFunc("/admin/users/{id}", h.Admin.GetUser).Methods("GET")
	protected.HandleFunc("/admin/users/{id}", h.Admin.UpdateUser).Methods("PATCH")
	protected.HandleFunc("/admin/users/{id}", h.Admin.DeleteUser).Methods("DELETE")
	protected.HandleFunc("/admin/users/{id}/impersonate", h.Admin.Impersonate).Methods("POST")
	protected.HandleFunc("/admin/users/{id}/loans", h.Admin.CreateLoanForUser).Methods("POST")
	protected.HandleFunc("/admin/loans", h.Admin.ListLoans).Methods("GET")
	protected.HandleFunc("/admin/loans/{id}", h.Admin.UpdateLoan).Methods("PUT")
	protected.HandleFunc("/admin/loans/{id}", h.Admin.DeleteLoan).Methods("DELETE")
	protected.HandleFunc("/admin/audit-logs", h.Admin.ListAuditLogs).Methods("GET")
	protected.HandleFunc("/admin/notifications/run", h.Admin.RunNotifications).Methods("POST")

	return response.CORSMiddleware(router)
}
