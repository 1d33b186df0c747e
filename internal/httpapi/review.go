package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "docreg/internal/errors"
	"docreg/internal/registration"
)

// registerUserJSON is one row of the list response. operated_time is the
// string "null" while a request is pending.
type registerUserJSON struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Storage      int64  `json:"storage"`
	SubmitTime   int64  `json:"submit_time"`
	Status       int    `json:"status"`
	OperatedTime any    `json:"operated_time"`
}

type listResponse struct {
	RegisterUsers []registerUserJSON `json:"register_users"`
}

type operateResponse struct {
	Status       int   `json:"status"`
	OperatedTime int64 `json:"operated_time"`
}

func toRegisterUserJSON(s registration.Summary) registerUserJSON {
	out := registerUserJSON{
		ID:           s.ID,
		Username:     s.Username,
		Email:        s.Email,
		Storage:      s.StorageQuota,
		SubmitTime:   s.SubmitTime.UnixMilli(),
		Status:       int(s.Status),
		OperatedTime: "null",
	}
	if s.OperatedTime != nil {
		out.OperatedTime = s.OperatedTime.UnixMilli()
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.registrar.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list registration requests", "error", err)
		writeJSON(w, http.StatusInternalServerError, operateError{Error: "unknown error"})
		return
	}

	resp := listResponse{RegisterUsers: make([]registerUserJSON, 0, len(summaries))}
	for _, s := range summaries {
		resp.RegisterUsers = append(resp.RegisterUsers, toRegisterUserJSON(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) operate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PostFormValue("id"))

	status, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("status")))
	if err != nil {
		h.writeOperateError(w, apperrors.Wrap(apperrors.ErrInvalidStatus, err))
		return
	}

	operatedAt, err := h.registrar.UpdateStatus(r.Context(), id, registration.Status(status))
	if err != nil {
		h.writeOperateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, operateResponse{
		Status:       status,
		OperatedTime: operatedAt.UnixMilli(),
	})
}

func (h *Handler) writeOperateError(w http.ResponseWriter, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidStatus, apperrors.KindNotFound:
		writeJSON(w, http.StatusBadRequest, operateError{Error: apperrors.GetUserMessage(err)})
	case apperrors.KindConflict, apperrors.KindUsernameTaken:
		h.logger.Error("status update conflict", "error", err)
		writeJSON(w, http.StatusInternalServerError, operateError{Error: "server error"})
	default:
		h.logger.Error("status update failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, operateError{Error: "unknown error"})
	}
}
