package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Applicant mirrors one row of the applicants table. PersonalInfo is a
// free-form document owned by the frontend; the backend stores it verbatim.
type Applicant struct {
	ID           uuid.UUID       `json:"userId"`
	Email        string          `json:"email"`
	ApplicantNo  int64           `json:"applicantId"`
	PersonalInfo json.RawMessage `json:"personalInfo,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// validatePassword checks password strength requirements.
func validatePassword(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters long"
	}
	if len(password) > 128 {
		return false, "Password must be less than 128 characters"
	}
	return true, ""
}

// normalizeEmail lower-cases and trims; the email column is unique on the
// normalized form.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// hashPassword generates a bcrypt hash of the password.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword compares a password with its hash.
func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// registerHandler handles POST /api/register. Creates an applicant with a
// bcrypt-hashed password and the next sequential applicant number.
func (cfg Config) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.Password = strings.TrimSpace(req.Password)

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if ok, msg := validatePassword(req.Password); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var exists bool
	err := cfg.DB.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM applicants WHERE email = $1)`, req.Email,
	).Scan(&exists)
	if err != nil {
		log.Printf("register: db check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "email already in use")
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("register: hash failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	id := uuid.New()
	var applicantNo int64
	err = cfg.DB.QueryRowContext(r.Context(), `
		INSERT INTO applicants (id, email, password_hash, applicant_no)
		VALUES ($1, $2, $3, nextval('applicant_no_seq'))
		RETURNING applicant_no
	`, id, req.Email, passwordHash).Scan(&applicantNo)
	if err != nil {
		log.Printf("register: insert failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create applicant")
		return
	}

	log.Printf("register: created applicant id=%s no=%d", id, applicantNo)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Registration successful",
		"data": map[string]any{
			"userId":      id,
			"applicantId": applicantNo,
			"email":       req.Email,
		},
	})
}

// loginHandler handles POST /api/login. On success it issues a signed
// session token in an HttpOnly cookie.
func (cfg Config) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var (
		id           uuid.UUID
		passwordHash string
	)
	err := cfg.DB.QueryRowContext(r.Context(),
		`SELECT id, password_hash FROM applicants WHERE email = $1`, req.Email,
	).Scan(&id, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		log.Printf("login: db query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if !verifyPassword(req.Password, passwordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := cfg.Auth.GenerateToken(id.String(), "applicant")
	if err != nil {
		log.Printf("login: token issue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	cfg.Auth.setSessionCookie(w, token, exp)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"data": map[string]any{
			"userId": id,
			"email":  req.Email,
		},
	})
}

// logoutHandler clears the session cookie.
func (cfg Config) logoutHandler(w http.ResponseWriter, r *http.Request) {
	cfg.Auth.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// authStatusHandler reports whether the caller holds a valid session and,
// if so, returns the applicant record. Always 200; the body carries the
// verdict.
func (cfg Config) authStatusHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := cfg.Auth.sessionClaims(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	applicant, err := cfg.loadApplicant(r, id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          applicant,
	})
}

// updateProfileHandler handles PUT /api/profile. The personal-info document
// is free-form JSON; it replaces the stored document wholesale.
func (cfg Config) updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		PersonalInfo json.RawMessage `json:"personalInfo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PersonalInfo) == 0 {
		writeError(w, http.StatusBadRequest, "personalInfo is required")
		return
	}

	res, err := cfg.DB.ExecContext(r.Context(), `
		UPDATE applicants
		SET personal_info = $1, updated_at = now()
		WHERE id = $2
	`, []byte(req.PersonalInfo), id)
	if err != nil {
		log.Printf("profile: update failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update personal info")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "applicant not found")
		return
	}

	applicant, err := cfg.loadApplicant(r, id)
	if err != nil {
		log.Printf("profile: reload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Personal information updated",
		"data":    applicant,
	})
}

func (cfg Config) loadApplicant(r *http.Request, id uuid.UUID) (Applicant, error) {
	var (
		a    Applicant
		info []byte
	)
	err := cfg.DB.QueryRowContext(r.Context(), `
		SELECT id, email, applicant_no, personal_info, created_at, updated_at
		FROM applicants
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Email, &a.ApplicantNo, &info, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Applicant{}, err
	}
	a.PersonalInfo = json.RawMessage(info)
	return a, nil
}
