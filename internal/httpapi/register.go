package httpapi

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	apperrors "docreg/internal/errors"
	"docreg/internal/registration"
	"docreg/internal/validate"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50
	passwordMinLength = 8
	passwordMaxLength = 50
	emailMaxLength    = 100
)

// registerForm is the validated registration input
type registerForm struct {
	username string
	password string
	email    string
	storage  int64
}

// parseRegisterForm applies the field checks in order and stops at the
// first failure
func parseRegisterForm(r *http.Request) (registerForm, error) {
	var f registerForm
	var err error

	if f.username, err = validate.Length(r.PostFormValue("username"), "username", usernameMinLength, usernameMaxLength); err != nil {
		return f, err
	}
	if err = validate.Username(f.username, "username"); err != nil {
		return f, err
	}
	if f.password, err = validate.Length(r.PostFormValue("password"), "password", passwordMinLength, passwordMaxLength); err != nil {
		return f, err
	}
	if f.email, err = validate.Length(r.PostFormValue("email"), "email", 1, emailMaxLength); err != nil {
		return f, err
	}
	if f.storage, err = validate.Int64(r.PostFormValue("storage"), "storage"); err != nil {
		return f, err
	}
	if err = validate.NonNegative(f.storage, "storage"); err != nil {
		return f, err
	}
	if err = validate.Email(f.email, "email"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	form, err := parseRegisterForm(r)
	if err != nil {
		h.writeRegisterError(w, apperrors.Validation(err.Error(), err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.password), h.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			fe := &validate.FieldError{Field: "password", Reason: "must be at most 72 bytes"}
			h.writeRegisterError(w, apperrors.Validation(fe.Error(), fe))
			return
		}
		h.logger.Error("failed to hash password", "error", err)
		h.writeRegisterError(w, err)
		return
	}

	id, err := h.registrar.Create(r.Context(), registration.Request{
		Username:     form.username,
		PasswordHash: string(hash),
		Email:        form.email,
		StorageQuota: form.storage,
		Status:       registration.StatusPending,
	})
	if err != nil {
		h.writeRegisterError(w, err)
		return
	}

	h.logger.Debug("registration accepted", "id", id, "username", form.username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeRegisterError(w http.ResponseWriter, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation,
		apperrors.KindDuplicatePendingRegistration,
		apperrors.KindUsernameTaken:
		writeJSON(w, http.StatusBadRequest, clientError{
			Type:    apperrors.ReasonOf(err),
			Message: apperrors.GetUserMessage(err),
		})
	default:
		h.logger.Error("registration failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, clientError{
			Type:    "UnknownError",
			Message: "Unknown server error",
		})
	}
}
