package api

import "time"

// SignupRequest is the JSON body for POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// SigninRequest is the JSON body for POST /auth/signin.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninTOTPRequest is the JSON body for POST /auth/signin/totp.
type SigninTOTPRequest struct {
	Code string `json:"code"`
}

// AuthResponse reports the outcome of an authentication step.
// Authenticated false means the TOTP step is still outstanding.
type AuthResponse struct {
	Authenticated bool `json:"authenticated"`
}

// TOTPSecretResponse is returned from POST /auth/totp/secret.
type TOTPSecretResponse struct {
	Secret          string    `json:"secret"`
	OtpauthURL      string    `json:"otpauth_url"`
	EnrollmentImage string    `json:"enrollment_image"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// EnableTOTPRequest is the JSON body for POST /auth/totp/enable.
type EnableTOTPRequest struct {
	Code string `json:"code"`
}

// TOTPStatusResponse reports whether two-factor auth is enabled.
type TOTPStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// CreateSpaceRequest is the JSON body for POST /spaces.
type CreateSpaceRequest struct {
	Name string `json:"name"`
}

// UpdateSpaceRequest is the JSON body for PUT /spaces/{spaceID}.
// UpdatedAt is the caller's last-known version token.
type UpdateSpaceRequest struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeleteRequest carries the version token for DELETE endpoints.
type DeleteRequest struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// SpaceResponse describes one space.
type SpaceResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListSpacesResponse is returned from GET /spaces.
type ListSpacesResponse struct {
	Spaces []SpaceResponse `json:"spaces"`
}

// CreateTodoRequest is the JSON body for POST /spaces/{spaceID}/todos.
type CreateTodoRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// UpdateTodoRequest is the JSON body for PUT /spaces/{spaceID}/todos/{todoID}.
// Nil fields are left unchanged; UpdatedAt is the version token.
type UpdateTodoRequest struct {
	Title     *string   `json:"title,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Done      *bool     `json:"done,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TodoResponse describes one todo.
type TodoResponse struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListTodosResponse is returned from GET /spaces/{spaceID}/todos.
type ListTodosResponse struct {
	Todos []TodoResponse `json:"todos"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
