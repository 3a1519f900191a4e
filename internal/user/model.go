package user

import "time"

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Avatar    string    `json:"avatar"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar"`
}

type RegisterPushTokenRequest struct {
	Token string `json:"token"`
}
