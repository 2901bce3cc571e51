package loader

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/antibyte/glyphvm/pkg/configuration"
	"github.com/antibyte/glyphvm/pkg/logger"
)

// BundleClaims is the JWT payload accompanying a signed program: it
// attests to the blake2b-256 digest of the program bytes rather than
// embedding them, so the token stays small regardless of program size.
type BundleClaims struct {
	Digest string `json:"dgst"`
	jwt.RegisteredClaims
}

// SignBundle produces a signed token attesting to program's digest,
// issued by issuer and valid for the given lifetime.
func SignBundle(program []byte, issuer string, lifetime time.Duration, secret []byte) (string, error) {
	digest := blake2b.Sum256(program)
	now := time.Now()

	claims := BundleClaims{
		Digest: hex.EncodeToString(digest[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("bundle could not be signed: %w", err)
	}
	return signed, nil
}

// VerifyBundle checks that tokenString is a validly signed, unexpired
// bundle whose digest claim matches program's actual blake2b-256 digest.
func VerifyBundle(tokenString string, program []byte, secret []byte) (*BundleClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BundleClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bundle token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid bundle token")
	}

	claims, ok := token.Claims.(*BundleClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract bundle claims")
	}

	digest := blake2b.Sum256(program)
	if claims.Digest != hex.EncodeToString(digest[:]) {
		return nil, fmt.Errorf("bundle digest does not match program")
	}

	return claims, nil
}

// RequireSignature reports whether [Security] require_signed_bundles is
// set, and if so, the trusted key to verify against.
func RequireSignature() (required bool, key []byte, err error) {
	required = configuration.GetBool("Security", "require_signed_bundles", false)
	if !required {
		return false, nil, nil
	}

	keyPath := configuration.GetString("Security", "trusted_key_file", "trusted.key")
	key, err = os.ReadFile(keyPath)
	if err != nil {
		return true, nil, fmt.Errorf("signed bundles required but trusted key unreadable: %w", err)
	}
	logger.Info(logger.AreaBundle, "bundle signature verification enabled, key file %s", keyPath)
	return true, key, nil
}
