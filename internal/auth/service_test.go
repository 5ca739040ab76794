package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/le-tueur/chatvc/internal/config"
	"github.com/le-tueur/chatvc/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	svc, err := NewService([]Credential{
		{Handle: "root", Role: models.RoleAdmin, PasswordHash: hash},
		{Handle: "alice", Role: models.RoleUser, PasswordHash: hash},
	}, config.JWTConfig{Secret: []byte("testsecret"), ExpiresIn: time.Hour})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestVerify(t *testing.T) {
	svc := newTestService(t)

	role, ok := svc.Verify("root")
	if !ok || role != models.RoleAdmin {
		t.Fatalf("expected admin, got %q %v", role, ok)
	}
	if _, ok := svc.Verify("mallory"); ok {
		t.Fatal("unknown handle must not verify")
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Login(context.Background(), &LoginRequest{Handle: "alice", Password: "hunter22"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != models.RoleUser {
		t.Fatalf("expected user role, got %q", resp.Role)
	}

	claims, err := svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Handle != "alice" || claims.Subject != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login(context.Background(), &LoginRequest{Handle: "alice", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	_, err = svc.Login(context.Background(), &LoginRequest{Handle: "nobody", Password: "hunter22"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService([]Credential{{Handle: "alice", Role: models.RoleUser}},
		config.JWTConfig{Secret: []byte("othersecret")})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	token, err := other.generateToken(Credential{Handle: "alice", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}
}

func TestNewServiceRejectsBadTable(t *testing.T) {
	tests := []struct {
		name  string
		creds []Credential
	}{
		{"empty handle", []Credential{{Handle: " ", Role: models.RoleUser}}},
		{"unknown role", []Credential{{Handle: "x", Role: "superuser"}}},
		{"duplicate", []Credential{{Handle: "x", Role: models.RoleUser}, {Handle: "x", Role: models.RoleGuest}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.creds, config.JWTConfig{Secret: []byte("s")}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	data := `[{"handle":"root","role":"admin","passwordHash":"x"},{"handle":"bot","role":"bot","passwordHash":"y"}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(creds) != 2 || creds[1].Role != models.RoleBot {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}
