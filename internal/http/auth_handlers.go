package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/trubo/mail-gateway/internal/core"
)

type authBody struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func decodeAuth(r *http.Request) (authBody, error) {
	var in authBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, core.NewValidationError(map[string]string{"body": "invalid json"})
	}
	return in, nil
}

func (s *Server) registerRequest(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAuth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	jobID, err := s.Auth.RegisterRequest(r.Context(), in.Email, in.Name, in.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "jobId": jobID})
}

func (s *Server) registerVerify(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAuth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Auth.RegisterVerify(r.Context(), in.Email, in.Code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) loginRequest(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAuth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	jobID, err := s.Auth.LoginRequest(r.Context(), in.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "jobId": jobID})
}

func (s *Server) loginVerify(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAuth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	token, err := s.Auth.LoginVerify(r.Context(), in.Email, in.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token})
}

func (s *Server) forgotRequest(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAuth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	jobID, err := s.Auth.ForgotRequest(r.Context(), in.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "jobId": jobID})
}

func (s *Server) forgotVerify(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAuth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Auth.ForgotVerify(r.Context(), in.Email, in.Code, in.NewPassword); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
