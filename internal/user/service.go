package user

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

type Service struct {
	store     Store
	jwtSecret string
	tokenTTL  time.Duration
}

type JWTClaims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(store Store, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:     store,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, apperrors.InvalidArg("username and password are required")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username: req.Username,
		Password: string(hashedPwd),
		Avatar:   req.Avatar,
	}

	if _, err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	u.Password = ""
	return u, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.store.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat-app-backend",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
		Avatar:      u.Avatar,
	}, nil
}

// ValidateToken verifies a session token and returns the identity baked into
// it. Every websocket connection passes through here before any messaging
// event is processed.
func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrAuthRejected
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return 0, "", apperrors.Cause(apperrors.ErrAuthRejected, err)
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.store.SearchUsers(ctx, query)
}

func (s *Service) Profile(ctx context.Context, id int) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

func (s *Service) RegisterPushToken(ctx context.Context, userID int, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.InvalidArg("push token is required")
	}
	return s.store.AddPushToken(ctx, userID, token)
}
