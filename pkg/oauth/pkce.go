package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// MinVerifierLength and MaxVerifierLength bound the code verifier length
	// as required by RFC 7636 section 4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// DefaultVerifierLength is the verifier length used when callers have no
	// preference. The longest allowed verifier gives the most entropy.
	DefaultVerifierLength = MaxVerifierLength

	// CodeChallengeMethodS256 is the only challenge method this client sends.
	CodeChallengeMethodS256 = "S256"

	// stateBytes is the number of random bytes for the OAuth state parameter.
	// 32 bytes encodes to 43 base64url characters.
	stateBytes = 32
)

// verifierCharset is the RFC 7636 unreserved character set.
const verifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// rejectionLimit is the largest multiple of len(verifierCharset) that fits in
// a byte. Bytes at or above it are discarded so that b % 66 stays uniform.
const rejectionLimit = 256 - 256%len(verifierCharset)

// randReader is the entropy source. Tests replace it to exercise rejection
// sampling deterministically.
var randReader io.Reader = rand.Reader

// GenerateCodeVerifier returns a random code verifier of the given length
// drawn from the unreserved character set.
//
// Each candidate character consumes one random byte. Bytes >= 198 are
// rejected and redrawn, which removes the modulo bias a plain b % 66 would
// introduce.
func GenerateCodeVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", &InvalidLengthError{Length: length}
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectionLimit {
				continue
			}
			out = append(out, verifierCharset[int(b)%len(verifierCharset)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// ComputeCodeChallenge returns the S256 challenge for a verifier:
// base64url(SHA256(verifier)) without padding.
func ComputeCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GeneratePKCEChallenge generates a verifier of the given length together
// with its S256 challenge.
func GeneratePKCEChallenge(length int) (*PKCEChallenge, error) {
	verifier, err := GenerateCodeVerifier(length)
	if err != nil {
		return nil, err
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       ComputeCodeChallenge(verifier),
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// GenerateState generates a random state parameter for OAuth.
// The state is used to prevent CSRF attacks and link the authorization
// response back to the original request.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
