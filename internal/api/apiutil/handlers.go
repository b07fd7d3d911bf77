// internal/api/apiutil/handlers.go
package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/authz"
)

// MaxJSONBodyBytes caps decoded request bodies.
const MaxJSONBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate runs the struct's validate tags and reports the first failure as a
// FieldError named after the JSON field.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	first := validationErrs[0]
	return FieldError{Field: first.Field(), Reason: describeTag(first)}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be %s or greater", fe.Param())
	case "lte":
		return fmt.Sprintf("must be %s or less", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return "is invalid"
	}
}

// DecodeJSON decodes exactly one JSON value and rejects unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// DecodeAndValidate decodes the body into dst and checks its validate tags.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return err
	}
	return Validate(dst)
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError writes the standard {"error": message} body.
func WriteError(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, map[string]string{"error": message})
}

// WriteHandlerError reports err to the client. HandlerErrors carry their own
// status and message; anything else is logged and answered with fallback.
func WriteHandlerError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	logger := log.Ctx(r.Context())
	var herr HandlerError
	if errors.As(err, &herr) {
		if herr.Status >= http.StatusInternalServerError {
			logger.Error().Err(herr.Err).Msg(herr.Message)
		}
		WriteError(w, herr.Status, herr.Message)
		return
	}
	var ferr FieldError
	if errors.As(err, &ferr) {
		WriteError(w, http.StatusBadRequest, ferr.Error())
		return
	}
	logger.Error().Err(err).Msg(fallback)
	WriteError(w, http.StatusInternalServerError, fallback)
}

// RequireUser returns the authenticated user or answers 401.
func RequireUser(w http.ResponseWriter, r *http.Request) (*authz.AuthUser, bool) {
	user := authz.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return user, true
}

// RequireRole answers 401 or 403 unless the user holds one of roles.
func RequireRole(w http.ResponseWriter, r *http.Request, roles ...string) (*authz.AuthUser, bool) {
	logger := log.Ctx(r.Context())
	user := authz.UserFromContext(r.Context())
	if err := authz.RequireRole(r.Context(), roles...); err != nil {
		switch {
		case errors.Is(err, authz.ErrUnauthenticated):
			WriteError(w, http.StatusUnauthorized, "Unauthorized")
		case errors.Is(err, authz.ErrForbidden):
			logEvent := logger.Warn().Strs("roles", roles)
			if user != nil {
				logEvent = logEvent.Int64("user_id", user.ID).Str("role", user.Role)
			}
			logEvent.Msg("Role check failed")
			WriteError(w, http.StatusForbidden, "Forbidden")
		default:
			logger.Error().Err(err).Msg("Role check failed")
			WriteError(w, http.StatusInternalServerError, "Failed to authorize request")
		}
		return nil, false
	}
	return user, true
}

// RequireSelfOrAdmin answers 401 or 403 unless the user is userID or an admin.
func RequireSelfOrAdmin(w http.ResponseWriter, r *http.Request, userID int64) (*authz.AuthUser, bool) {
	if err := authz.RequireSelfOrAdmin(r.Context(), userID); err != nil {
		if errors.Is(err, authz.ErrUnauthenticated) {
			WriteError(w, http.StatusUnauthorized, "Unauthorized")
		} else {
			WriteError(w, http.StatusForbidden, "Forbidden")
		}
		return nil, false
	}
	return authz.UserFromContext(r.Context()), true
}
