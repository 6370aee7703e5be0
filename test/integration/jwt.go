package integration

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims holds the configurable claims for generating test bearer
// tokens. The proxy never verifies signatures, so tokens are signed with a
// throwaway symmetric key; what matters is that the claims decode.
type TestClaims struct {
	SubjectID string
	Email     string
	Extra     map[string]any
}

// OperatorClaims returns TestClaims for a typical operator user.
func OperatorClaims() TestClaims {
	return TestClaims{
		SubjectID: "42",
		Email:     "operatore@gestri.example",
	}
}

// GenerateToken creates a decodable JWT with the given claims.
func GenerateToken(t *testing.T, claims TestClaims) string {
	t.Helper()

	mapClaims := jwt.MapClaims{
		"sub":   claims.SubjectID,
		"email": claims.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims.Extra {
		mapClaims[k] = v
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).
		SignedString([]byte("integration-test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
