package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ternarybob/arachne/internal/common"
)

// Encoded hash layout: <method>$<salt-hex>$<digest-hex>, e.g.
// pbkdf2:sha256:600000$a1b2...$9f8e...
// The "plain" method keeps the password verbatim and is only allowed in
// development.

// hashPassword encodes a plaintext under the configured method
func hashPassword(method string, saltLength int, plaintext string) (string, error) {
	if method == "plain" {
		return "plain$$" + plaintext, nil
	}

	algo, iterations, err := parseMethod(method)
	if err != nil {
		return "", err
	}
	if algo != "sha256" {
		return "", &common.CredentialError{Reason: fmt.Sprintf("unsupported hash algorithm %q", algo)}
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", &common.CredentialError{Reason: "failed to generate salt", Cause: err}
	}

	digest := pbkdf2.Key([]byte(plaintext), salt, iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("%s$%s$%s", method, hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// verifyPassword checks a plaintext against an encoded hash in constant time
func verifyPassword(encoded, plaintext string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 3)
	if len(parts) != 3 {
		return false, &common.CredentialError{Reason: "malformed password hash"}
	}
	method, saltHex, digestHex := parts[0], parts[1], parts[2]

	if method == "plain" {
		return subtle.ConstantTimeCompare([]byte(digestHex), []byte(plaintext)) == 1, nil
	}

	algo, iterations, err := parseMethod(method)
	if err != nil {
		return false, err
	}
	if algo != "sha256" {
		return false, &common.CredentialError{Reason: fmt.Sprintf("unsupported hash algorithm %q", algo)}
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, &common.CredentialError{Reason: "malformed salt", Cause: err}
	}
	expected, err := hex.DecodeString(digestHex)
	if err != nil {
		return false, &common.CredentialError{Reason: "malformed digest", Cause: err}
	}

	digest := pbkdf2.Key([]byte(plaintext), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(digest, expected) == 1, nil
}

// parseMethod splits "pbkdf2:<algo>:<iterations>"
func parseMethod(method string) (algo string, iterations int, err error) {
	parts := strings.Split(method, ":")
	if len(parts) != 3 || parts[0] != "pbkdf2" {
		return "", 0, &common.CredentialError{Reason: fmt.Sprintf("unsupported hash method %q", method)}
	}
	iterations, convErr := strconv.Atoi(parts[2])
	if convErr != nil || iterations < 1 {
		return "", 0, &common.CredentialError{Reason: fmt.Sprintf("invalid iteration count in %q", method)}
	}
	return parts[1], iterations, nil
}
