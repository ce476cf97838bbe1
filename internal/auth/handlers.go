package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AuthHandlers handles authentication HTTP endpoints
type AuthHandlers struct {
	jwtService      *JWTService
	passwordService *PasswordService
	operatorHash    string
	validator       *validator.Validate
	logger          *slog.Logger
}

// NewAuthHandlers creates a new auth handlers instance. An empty
// operatorHash disables token issuance.
func NewAuthHandlers(jwtService *JWTService, passwordService *PasswordService, operatorHash string, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		jwtService:      jwtService,
		passwordService: passwordService,
		operatorHash:    operatorHash,
		validator:       validator.New(),
		logger:          logger.With("component", "auth"),
	}
}

// IssueToken exchanges the operator password for a bearer token
// POST /api/auth/token
func (h *AuthHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.operatorHash == "" {
		h.sendError(w, http.StatusServiceUnavailable, "OperatorDisabled", "Operator login is not configured")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	if !h.passwordService.VerifyPassword(req.Password, h.operatorHash) {
		h.logger.Warn("operator login rejected", "remote", r.RemoteAddr)
		h.sendError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid password")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(RoleOperator, RoleOperator)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	h.logger.Info("operator token issued", "remote", r.RemoteAddr, "expires_at", expiresAt)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Role:        RoleOperator,
	})
}

func (h *AuthHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

func (h *AuthHandlers) sendValidationError(w http.ResponseWriter, err error) {
	h.sendError(w, http.StatusBadRequest, "ValidationError", ValidationMessage(err))
}

// ValidationMessage flattens validator errors into "Field: problem" pairs.
func ValidationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
	}
	return strings.Join(msgs, "; ")
}

func getValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
