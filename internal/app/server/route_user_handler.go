package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"krampus/internal/api/dto"
	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/domain"
	"krampus/internal/support"
)

func checkLogin(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func registerUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if credentials.Username == "" {
		writeError(w, "Username is required", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	existing, err := database.GetUserByUsername(credentials.Username)
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		writeError(w, "Username already in use", http.StatusConflict)
		return
	}

	hashedPassword, err := support.HashPassword(credentials.Password)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := domain.User{
		Username: credentials.Username,
		Password: hashedPassword,
		Role:     domain.RoleUser,
	}
	if credentials.Email != "" {
		user.Email = &credentials.Email
	}

	// The first registered user runs the instance.
	count, err := database.CountUsers()
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if count == 0 {
		user.Role = domain.RoleAdmin
	}

	if err := database.CreateUser(&user); err != nil {
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	log.Info("User registered", "username", user.Username, "role", user.Role)

	token, err := auth.GenerateJWT(&user)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func loginUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByUsername(credentials.Username)
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if user == nil || !support.CheckPasswordHash(credentials.Password, user.Password) {
		writeError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var change dto.PasswordChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(change.NewPassword) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByID(principal.ID)
	if err != nil || user == nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if !support.CheckPasswordHash(change.OldPassword, user.Password) {
		writeError(w, "Old password is incorrect", http.StatusUnauthorized)
		return
	}

	hashed, err := support.HashPassword(change.NewPassword)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}
	if err := database.UpdateUserPassword(user.ID, hashed); err != nil {
		writeError(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := database.ListUsers()
	if err != nil {
		writeError(w, "Failed to fetch users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// listInstances reports the server instances with a live redis heartbeat.
// Without redis the only instance is this process, so the list is empty.
func listInstances(w http.ResponseWriter, r *http.Request) {
	client, err := support.GetRedisClient()
	if err != nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}

	instances, err := support.ListInstances(r.Context(), client)
	if err != nil {
		writeError(w, "Failed to fetch instances", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}
