package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret-key-for-unit-tests"

func TestGenerateAndVerifyToken(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tokenStr, err := GenerateToken(testSecret, userID, "student", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	claims, err := VerifyToken(testSecret, tokenStr)
	if err != nil {
		t.Fatalf("VerifyToken() error: %v", err)
	}
	if claims.UserID != userID.String() {
		t.Errorf("UserID = %q, want %q", claims.UserID, userID)
	}
	if claims.Role != "student" {
		t.Errorf("Role = %q, want student", claims.Role)
	}
	sub, err := claims.SubjectID()
	if err != nil {
		t.Fatalf("SubjectID() error: %v", err)
	}
	if sub != userID {
		t.Errorf("SubjectID() = %s, want %s", sub, userID)
	}
}

func TestVerifyTokenErrors(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	expired, err := GenerateToken(testSecret, userID, "student", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	wrongKey, err := GenerateToken("another-secret", userID, "student", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: userID.String(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrTokenMissing},
		{"malformed", "not.a.jwt", ErrTokenInvalid},
		{"expired", expired, ErrTokenExpired},
		{"wrong signature", wrongKey, ErrTokenInvalid},
		{"no expiry", noExp, ErrTokenInvalid},
		{"alg none", none, ErrTokenInvalid},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := VerifyToken(testSecret, tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("VerifyToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthorizeSubject(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	tokenStr, err := GenerateToken(testSecret, owner, "student", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	t.Run("matching subject", func(t *testing.T) {
		t.Parallel()
		if _, err := AuthorizeSubject(testSecret, tokenStr, owner); err != nil {
			t.Errorf("AuthorizeSubject() error: %v", err)
		}
	})

	t.Run("other user", func(t *testing.T) {
		t.Parallel()
		_, err := AuthorizeSubject(testSecret, tokenStr, uuid.New())
		if !errors.Is(err, ErrTokenSubject) {
			t.Errorf("AuthorizeSubject() error = %v, want ErrTokenSubject", err)
		}
	})

	t.Run("subject not a uuid", func(t *testing.T) {
		t.Parallel()
		bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		_, err = AuthorizeSubject(testSecret, bad, owner)
		if !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("AuthorizeSubject() error = %v, want ErrTokenInvalid", err)
		}
	})
}
