package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/le-tueur/chatvc/internal/config"
	"github.com/le-tueur/chatvc/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Credential is one row of the static credential table.
type Credential struct {
	Handle       string      `json:"handle"`
	Role         models.Role `json:"role"`
	PasswordHash string      `json:"passwordHash"`
}

type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token  string      `json:"token"`
	Handle string      `json:"handle"`
	Role   models.Role `json:"role"`
}

type Claims struct {
	Handle string      `json:"handle"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service is the single credential authority: the login endpoint, the
// websocket upgrade and the auth event all go through it.
type Service struct {
	creds map[string]Credential
	cfg   config.JWTConfig
	now   func() time.Time
}

// LoadCredentials reads a JSON array of credentials.
func LoadCredentials(path string) ([]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var creds []Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

func NewService(creds []Credential, cfg config.JWTConfig) (*Service, error) {
	table := make(map[string]Credential, len(creds))
	for _, c := range creds {
		c.Handle = strings.TrimSpace(c.Handle)
		if c.Handle == "" {
			return nil, fmt.Errorf("credential with empty handle")
		}
		if !c.Role.Valid() {
			return nil, fmt.Errorf("credential %s has unknown role %q", c.Handle, c.Role)
		}
		if _, dup := table[c.Handle]; dup {
			return nil, fmt.Errorf("duplicate credential for %s", c.Handle)
		}
		table[c.Handle] = c
	}
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = 24 * time.Hour
	}

	return &Service{creds: table, cfg: cfg, now: time.Now}, nil
}

// Verify reports the role of handle, or false when the handle is not in
// the table.
func (s *Service) Verify(handle string) (models.Role, bool) {
	c, ok := s.creds[handle]
	if !ok {
		return "", false
	}
	return c.Role, true
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	c, ok := s.creds[strings.TrimSpace(req.Handle)]
	if !ok {
		return nil, ErrInvalidCredentials
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(c)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:  token,
		Handle: c.Handle,
		Role:   c.Role,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	// A token outlives a removed credential; the table is authoritative.
	if _, ok := s.Verify(claims.Handle); !ok {
		return nil, fmt.Errorf("unknown handle %q", claims.Handle)
	}
	return claims, nil
}

func (s *Service) generateToken(c Credential) (string, error) {
	now := s.now()
	claims := Claims{
		Handle: c.Handle,
		Role:   c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Handle,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.Secret)
}

// HashPassword produces the bcrypt hash stored in the credential table.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
