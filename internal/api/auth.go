package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/meddesk/internal/domain"
	"github.com/ashureev/meddesk/internal/identity"
	"github.com/ashureev/meddesk/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Messages shown to users.
const (
	msgEmailTaken       = "Email already in use."
	msgNoUser           = "No user found with this email."
	msgWrongPassword    = "Incorrect password."
	msgWrongRole        = "Incorrect role."
	msgLoginOK          = "Login successful."
	msgLogoutFailed     = "Failed to logout."
	msgPasswordTooLong  = "Password must be at most 72 bytes."
	msgInvalidDOB       = "Date of birth must be YYYY-MM-DD."
	msgInvalidRole      = "Role must be patient, doctor or admin."
	maxPasswordBytes    = 72
	maxAuthBodyBytes    = 64 << 10
	dateOfBirthLayout   = "2006-01-02"
	signupRequiredField = " is required."
)

var (
	errNoUser           = errors.New(msgNoUser)
	errWrongPassword    = errors.New(msgWrongPassword)
	errWrongRole        = errors.New(msgWrongRole)
	errMissingEmailOrPw = errors.New("Email and password are required.")
)

// UserStore is the account persistence the auth handler needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
}

// AuthHandler handles signup, login and logout.
type AuthHandler struct {
	users      UserStore
	sessions   *identity.Manager
	renderer   Renderer
	bcryptCost int
	now        func() time.Time
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(users UserStore, sessions *identity.Manager, renderer Renderer, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		users:      users,
		sessions:   sessions,
		renderer:   renderer,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// RegisterRoutes registers the account routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/signup", h.SignupPage)
	r.Post("/signup", h.Signup)
	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Post("/auth/login", h.LoginJSON)
	r.Get("/logout", h.Logout)
}

// SignupPage renders the signup form.
func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	render(w, h.renderer, http.StatusOK, "signup", PageData{Title: "Sign up", Page: "signup"})
}

// LoginPage renders the login form.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, h.renderer, http.StatusOK, "login", PageData{Title: "Login", Page: "login"})
}

// readFields reads a JSON object or an urlencoded form into a flat map.
func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	return fields, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account and logs the new user in.
//
//nolint:gocyclo // Field validation is kept inline to mirror the form.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		render(w, h.renderer, http.StatusBadRequest, "signup", PageData{Title: "Sign up", Page: "signup", Error: "Invalid form submission."})
		return
	}

	fail := func(status int, msg string) {
		delete(fields, "password")
		render(w, h.renderer, status, "signup", PageData{Title: "Sign up", Page: "signup", Error: msg, Form: fields})
	}

	for _, name := range []string{"role", "name", "email", "password", "gender", "phone", "dob"} {
		if strings.TrimSpace(fields[name]) == "" {
			fail(http.StatusBadRequest, strings.ToUpper(name[:1])+name[1:]+signupRequiredField)
			return
		}
	}
	role := strings.ToLower(strings.TrimSpace(fields["role"]))
	if !domain.IsValidRole(role) {
		fail(http.StatusBadRequest, msgInvalidRole)
		return
	}
	dob, err := time.Parse(dateOfBirthLayout, strings.TrimSpace(fields["dob"]))
	if err != nil {
		fail(http.StatusBadRequest, msgInvalidDOB)
		return
	}
	if len(fields["password"]) > maxPasswordBytes {
		fail(http.StatusBadRequest, msgPasswordTooLong)
		return
	}

	ctx := r.Context()
	email := normalizeEmail(fields["email"])
	existing, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		slog.Error("Failed to look up account", "error", err)
		fail(http.StatusInternalServerError, "Error: could not create account.")
		return
	}
	if existing != nil {
		fail(http.StatusConflict, msgEmailTaken)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(fields["password"]), h.bcryptCost)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		fail(http.StatusInternalServerError, "Error: could not create account.")
		return
	}

	now := h.now()
	user := &domain.User{
		ID:             uuid.NewString(),
		Role:           role,
		Name:           strings.TrimSpace(fields["name"]),
		Email:          email,
		PasswordHash:   string(hash),
		Gender:         strings.TrimSpace(fields["gender"]),
		Phone:          strings.TrimSpace(fields["phone"]),
		DateOfBirth:    dob,
		Insurance:      strings.TrimSpace(fields["insurance"]),
		MedicalHistory: strings.TrimSpace(fields["medicalHistory"]),
		License:        strings.TrimSpace(fields["license"]),
		Specialty:      strings.TrimSpace(fields["specialty"]),
		Hospital:       strings.TrimSpace(fields["hospital"]),
		AdminCode:      strings.TrimSpace(fields["adminCode"]),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			fail(http.StatusConflict, msgEmailTaken)
			return
		}
		slog.Error("Failed to create account", "error", err)
		fail(http.StatusInternalServerError, "Error: could not create account.")
		return
	}
	slog.Info("Account created", "user_id", user.ID, "role", user.Role)

	if _, err := h.sessions.Establish(w, r, &domain.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}); err != nil {
		slog.Error("Failed to establish session after signup", "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// authenticate checks credentials and, when role is non-empty, the account role.
func (h *AuthHandler) authenticate(ctx context.Context, email, password, role string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, errMissingEmailOrPw
	}
	user, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errNoUser
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errWrongPassword
	}
	if role != "" && !strings.EqualFold(role, user.Role) {
		return nil, errWrongRole
	}
	return user, nil
}

func isCredentialError(err error) bool {
	return errors.Is(err, errNoUser) || errors.Is(err, errWrongPassword) ||
		errors.Is(err, errWrongRole) || errors.Is(err, errMissingEmailOrPw)
}

// Login handles the login form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		render(w, h.renderer, http.StatusBadRequest, "login", PageData{Title: "Login", Page: "login", Error: "Invalid form submission."})
		return
	}
	email := normalizeEmail(fields["email"])
	form := map[string]string{"email": email}

	user, err := h.authenticate(r.Context(), email, fields["password"], strings.TrimSpace(fields["role"]))
	if err != nil {
		if isCredentialError(err) {
			render(w, h.renderer, http.StatusUnauthorized, "login", PageData{Title: "Login", Page: "login", Error: err.Error(), Form: form})
			return
		}
		slog.Error("Login failed", "error", err)
		render(w, h.renderer, http.StatusInternalServerError, "login", PageData{Title: "Login", Page: "login", Error: "Error: could not log in.", Form: form})
		return
	}

	if _, err := h.sessions.Establish(w, r, &domain.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}); err != nil {
		slog.Error("Failed to establish session", "error", err)
		render(w, h.renderer, http.StatusInternalServerError, "login", PageData{Title: "Login", Page: "login", Error: "Error: could not log in.", Form: form})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginJSON handles the scripted login used by the role selector.
func (h *AuthHandler) LoginJSON(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		JSON(w, http.StatusBadRequest, loginResponse{Message: "Invalid request body."})
		return
	}

	user, err := h.authenticate(r.Context(), normalizeEmail(fields["email"]), fields["password"], strings.TrimSpace(fields["role"]))
	if err != nil {
		if isCredentialError(err) {
			JSON(w, http.StatusUnauthorized, loginResponse{Message: err.Error()})
			return
		}
		slog.Error("Login failed", "error", err)
		JSON(w, http.StatusInternalServerError, loginResponse{Message: "Error: could not log in."})
		return
	}

	if _, err := h.sessions.Establish(w, r, &domain.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}); err != nil {
		slog.Error("Failed to establish session", "error", err)
		JSON(w, http.StatusInternalServerError, loginResponse{Message: "Error: could not log in."})
		return
	}
	JSON(w, http.StatusOK, loginResponse{Success: true, Message: msgLoginOK})
}

// Logout terminates the session and returns to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Terminate(w, r); err != nil {
		slog.Error("Logout failed", "error", err)
		http.Error(w, msgLogoutFailed, http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}
