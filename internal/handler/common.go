package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/auth"
	"github.com/segyhp/loan-tracker/internal/domain"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
	"github.com/segyhp/loan-tracker/pkg/response"
)

const maxBodyBytes = 1 << 20

// newValidator returns a validator that compares decimal fields as numbers
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}

	if err := v.Struct(dst); err != nil {
		response.BadRequest(w, "Validation failed", validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msg := fe.Field() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// statusFor maps business error codes to HTTP statuses
var statusFor = map[string]int{
	customError.ErrCodeUserNotFound:         http.StatusNotFound,
	customError.ErrCodeLoanNotFound:         http.StatusNotFound,
	customError.ErrCodeNotificationNotFound: http.StatusNotFound,
	customError.ErrCodeEmailTaken:           http.StatusConflict,
	customError.ErrCodeLoanAlreadyCompleted: http.StatusConflict,
	customError.ErrCodeInvalidCredentials:   http.StatusUnauthorized,
	customError.ErrCodeUserInactive:         http.StatusForbidden,
	customError.ErrCodeForbidden:            http.StatusForbidden,
	customError.ErrCodeInvalidLoan:          http.StatusBadRequest,
	customError.ErrCodeInvalidExportFormat:  http.StatusBadRequest,
	customError.ErrCodeInvalidRequest:       http.StatusBadRequest,
	customError.ErrCodeCannotDeleteSelf:     http.StatusUnprocessableEntity,
	customError.ErrCodeCannotImpersonate:    http.StatusUnprocessableEntity,
}

// writeError renders a service error. Internal failures are logged and
// reported without their cause.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	if errors.Is(err, auth.ErrInvalidToken) {
		response.Unauthorized(w, "Invalid or expired token")
		return
	}

	var be *customError.BusinessError
	if errors.As(err, &be) {
		if status, ok := statusFor[be.Code]; ok {
			response.Fail(w, status, be.Code, be.Message)
			return
		}
		log.WithError(err).WithField("code", be.Code).Error("Request failed")
		response.Fail(w, http.StatusInternalServerError, be.Code, "Internal server error")
		return
	}

	log.WithError(err).Error("Request failed")
	response.InternalServerError(w, "Internal server error", nil)
}

// actorFrom returns the caller set by the auth middleware
func actorFrom(r *http.Request) domain.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

func requestMeta(r *http.Request) domain.RequestMeta {
	actor := actorFrom(r)
	return domain.RequestMeta{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

// clientIP is the peer address. RealIPMiddleware replaces it with the
// forwarded client address when the proxy is trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// pathUUID parses a uuid route variable, writing a 400 when it is malformed
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// pageFrom reads limit/offset query parameters
func pageFrom(w http.ResponseWriter, r *http.Request) (domain.Page, bool) {
	var page domain.Page
	q := r.URL.Query()

	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(w, "Invalid "+name, nil)
			return domain.Page{}, false
		}
		*dst = n
	}
	return page.Normalize(), true
}

func loanFilterFrom(w http.ResponseWriter, r *http.Request) (domain.LoanFilter, bool) {
	page, ok := pageFrom(w, r)
	if !ok {
		return domain.LoanFilter{}, false
	}
	q := r.URL.Query()
	return domain.LoanFilter{
		Status: domain.LoanStatus(strings.ToUpper(q.Get("status"))),
		Search: strings.TrimSpace(q.Get("q")),
		Page:   page,
	}, true
}
