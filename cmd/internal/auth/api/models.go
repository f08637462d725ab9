package authapi

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type successResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}
