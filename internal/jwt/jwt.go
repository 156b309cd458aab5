// Package jwt signs and verifies the RS256 access tokens that reference
// per-app sessions. Tokens deliberately carry no expiry claim: expiry and
// revocation are enforced against the referenced session row, so a valid
// signature alone never authorizes anything.
package jwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/isleoflan/sso-server/internal/domain"
)

// SessionClaims is the access token payload.
type SessionClaims struct {
	IssuedAt  int64  `json:"iat"`
	SessionID string `json:"ses"`
}

// Codec signs session references with the broker's RSA key.
type Codec struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// NewCodec builds a codec from PEM-encoded keys.
func NewCodec(privatePEM, publicPEM []byte) (*Codec, error) {
	private, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	public, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	return &Codec{private: private, public: public}, nil
}

// NewCodecFromKey wraps an already-parsed key, mainly for tests.
func NewCodecFromKey(private *rsa.PrivateKey) *Codec {
	return &Codec{private: private, public: &private.PublicKey}
}

// Load reads the signing key pair from PEM files.
func Load(privatePath, publicPath string) (*Codec, error) {
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read signing private key: %w", err)
	}
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read signing public key: %w", err)
	}
	return NewCodec(privatePEM, publicPEM)
}

// Sign issues an access token referencing the given session id.
func (c *Codec) Sign(sessionID string) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: c.private},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	claims := SessionClaims{
		IssuedAt:  time.Now().Unix(),
		SessionID: sessionID,
	}
	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and returns the referenced session id. Any
// structural or signature failure maps to ErrAuth; callers must still look
// up the session and check its expiry.
func (c *Codec) Verify(token string) (string, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.RS256})
	if err != nil {
		return "", fmt.Errorf("%w: parse token: %v", domain.ErrAuth, err)
	}

	var claims SessionClaims
	if err := parsed.Claims(c.public, &claims); err != nil {
		return "", fmt.Errorf("%w: verify token: %v", domain.ErrAuth, err)
	}
	if claims.SessionID == "" {
		return "", fmt.Errorf("%w: missing session claim", domain.ErrAuth)
	}
	return claims.SessionID, nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return key, nil
}
