package httpapi

import (
	"errors"
	"net/http"

	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/observability"
	"github.com/example/campus-fleet/internal/store"
)

type signupRequest struct {
	Name           string              `json:"name"`
	Phone          string              `json:"phone"`
	Email          string              `json:"email"`
	Password       string              `json:"password"`
	RegistrationID string              `json:"registration_id"`
	DOB            string              `json:"dob"`
	Role           models.Role         `json:"role"`
	DriverType     *models.VehicleType `json:"driver_type"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == "" || req.Phone == "" || req.Password == "" {
		badRequest(w, "name, phone and password required")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	if !req.Role.Valid() {
		badRequest(w, "invalid role")
		return
	}
	if req.Role == models.RoleDriver && (req.DriverType == nil || !req.DriverType.Valid()) {
		badRequest(w, "driver_type required for drivers")
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	u := &models.User{
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		PasswordHash:   hash,
		RegistrationID: req.RegistrationID,
		DOB:            req.DOB,
		Role:           req.Role,
		DriverType:     req.DriverType,
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		s.writeError(w, err)
		return
	}
	token, err := s.auth.GenerateToken(u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: token, TokenType: "bearer", User: u})
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Phone == "" && req.Email == "" {
		badRequest(w, "phone or email required")
		return
	}

	var (
		u   *models.User
		err error
	)
	if req.Phone != "" {
		u, err = s.store.UserByPhone(r.Context(), req.Phone)
	} else {
		u, err = s.store.UserByEmail(r.Context(), req.Email)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.auth.CheckPassword(req.Password, u.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}

	token, err := s.auth.GenerateToken(u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer", User: u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	u, err := s.store.UserByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil || req.Phone == "" {
		badRequest(w, "phone required")
		return
	}
	if _, err := s.store.UserByPhone(r.Context(), req.Phone); err != nil {
		s.writeError(w, err)
		return
	}
	code, err := s.otps.Issue(r.Context(), req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.OTPIssuedTotal.Inc()
	if s.notify != nil {
		if err := s.notify.SendOTP(r.Context(), req.Phone, code); err != nil {
			s.logger.Error("otp delivery failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone       string `json:"phone"`
		OTP         string `json:"otp"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeBody(r, &req); err != nil || req.Phone == "" || req.OTP == "" || req.NewPassword == "" {
		badRequest(w, "phone, otp and new_password required")
		return
	}
	ok, err := s.otps.Verify(r.Context(), req.Phone, req.OTP)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		observability.OTPFailuresTotal.Inc()
		badRequest(w, "invalid or expired OTP")
		return
	}
	u, err := s.store.UserByPhone(r.Context(), req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash, err := s.auth.HashPassword(req.NewPassword)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.UpdateUserPassword(r.Context(), u.ID, hash); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone          string `json:"phone"`
		RegistrationID string `json:"registration_id"`
	}
	if err := decodeBody(r, &req); err != nil || (req.Phone == "" && req.RegistrationID == "") {
		badRequest(w, "phone or registration_id required")
		return
	}

	var (
		u   *models.User
		err error
	)
	if req.Phone != "" {
		u, err = s.store.UserByPhone(r.Context(), req.Phone)
	}
	if u == nil && req.RegistrationID != "" {
		u, err = s.store.UserByRegistrationID(r.Context(), req.RegistrationID)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": u != nil, "user": u})
}
