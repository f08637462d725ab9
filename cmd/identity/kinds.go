package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrNotFound           = errors.New("not_found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// Logical field names reported by ConflictError and ValidationError.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldPublicID = "user_id"
)

// User-facing messages carried by typed errors.
const (
	MsgAllFieldsRequired  = "All fields are required."
	MsgPasswordPolicy     = "Password does not meet requirements."
	MsgAlreadyExists      = "Username or email already exists."
	MsgInvalidCredentials = "Invalid credentials."
)
