package auth

import (
	"errors"
	"testing"
	"time"

	"deptfunds/internal/core"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, err := iss.Issue(core.User{ID: "u1", Role: core.RoleHOD, DepartmentID: "d1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != core.RoleHOD || claims.DepartmentID != "d1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	other, _ := NewIssuer("different", time.Hour)
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret err = %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	iss, _ := NewIssuer("s3cret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := iss.Issue(core.User{ID: "u1", Role: core.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	iss.now = time.Now
	if _, err := iss.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  ", time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("err = %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, tt.ok)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatal("expected match")
	}
	if CheckPassword(hash, "hunter23") {
		t.Fatal("expected mismatch")
	}
}
