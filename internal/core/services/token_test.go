package services

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret")

	token, err := svc.GenerateToken("user-123")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	userID, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("expected user-123, got %q", userID)
	}
}

func TestTokenRejection(t *testing.T) {
	svc := NewTokenService("test-secret")
	valid, _ := svc.GenerateToken("user-123")

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"empty", ""},
		{"tampered", valid + "x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tc.token); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-a").GenerateToken("user-123")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewTokenService("secret-b").ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}
