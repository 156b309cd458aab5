// Package intermediate implements the RSA-encrypted, checksum-protected
// handoff token minted after a successful login and exchanged by the app
// backend for a session. Wire format: <base64 ciphertext>*<base64 checksum>.
package intermediate

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/isleoflan/sso-server/internal/domain"
)

// TokenLifetime is the validity window of a minted token. Decryption alone
// does not enforce it; callers must check Payload.Expired.
const TokenLifetime = 60 * time.Second

// encryptionBlockSize is the plaintext chunk size. It must stay below the
// RSA modulus size minus the 11 bytes of PKCS#1 padding.
const encryptionBlockSize = 200

var (
	// ErrMalformed marks token segments that fail structural checks.
	ErrMalformed = fmt.Errorf("%w: token is not of any valid format", domain.ErrInvalidValue)
	// ErrChecksum marks a structurally valid token whose checksum does not
	// match, i.e. a tampered token.
	ErrChecksum = fmt.Errorf("%w: token checksum is not valid", domain.ErrInvalidValue)

	errChecksumFormat = fmt.Errorf("%w: checksum segment is not valid", domain.ErrInvalidValue)
)

// Payload is the decrypted content of an intermediate token. Field names are
// part of the wire format.
type Payload struct {
	AppID           string `json:"appId"`
	GlobalSessionID string `json:"gsId"`
	IssuedAt        int64  `json:"s"`
}

// Expired reports whether the token's validity window has closed.
func (p Payload) Expired() bool {
	return time.Now().Unix() > p.IssuedAt+int64(TokenLifetime/time.Second)
}

// Codec encrypts payloads with the broker's private key and decrypts them
// with the matching public key. Encrypting with the private key makes the
// token a signature with recoverable plaintext: anyone holding the public
// key can read it, nobody without the private key can forge it.
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

// NewCodecFromKeys wraps already-parsed keys, mainly for tests.
func NewCodecFromKeys(private *rsa.PrivateKey) *Codec {
	return &Codec{private: private, public: &private.PublicKey}
}

// Load reads the key pair from PEM files.
func Load(privatePath, publicPath string) (*Codec, error) {
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewCodec(privatePEM, publicPEM)
}

// Encrypt serializes the payload, encrypts it in fixed-size chunks with the
// private key and appends the checksum segment.
func (c *Codec) Encrypt(payload Payload) (string, error) {
	if payload.AppID == "" || payload.GlobalSessionID == "" {
		return "", fmt.Errorf("%w: empty payload", domain.ErrInvalidValue)
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal payload: %v", domain.ErrEncryption, err)
	}

	var encrypted []byte
	for offset := 0; offset < len(plain); offset += encryptionBlockSize {
		end := offset + encryptionBlockSize
		if end > len(plain) {
			end = len(plain)
		}
		chunk, err := privateEncrypt(c.private, plain[offset:end])
		if err != nil {
			return "", fmt.Errorf("%w: encrypt chunk: %v", domain.ErrEncryption, err)
		}
		encrypted = append(encrypted, chunk...)
	}

	token := encode64(encrypted)
	return token + "*" + encodeChecksum(checksum(token)), nil
}

// Decrypt validates the token's structure and checksum, then decrypts it
// with the public key. Expiry is not checked here.
func (c *Codec) Decrypt(token string) (Payload, error) {
	parts := strings.Split(token, "*")
	if len(parts) != 2 {
		return Payload{}, ErrMalformed
	}

	ciphertext, err := decode64(parts[0])
	if err != nil || encode64(ciphertext) != parts[0] {
		return Payload{}, ErrMalformed
	}

	sum, err := decodeChecksum(parts[1])
	if err != nil {
		return Payload{}, ErrChecksum
	}
	if checksum(parts[0]) != sum {
		return Payload{}, ErrChecksum
	}

	blockSize := c.public.Size()
	var plain []byte
	for offset := 0; offset < len(ciphertext); offset += blockSize {
		end := offset + blockSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		chunk, err := publicDecrypt(c.public, ciphertext[offset:end])
		if err != nil {
			return Payload{}, fmt.Errorf("%w: decrypt chunk: %v", domain.ErrEncryption, err)
		}
		plain = append(plain, chunk...)
	}

	var payload Payload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: decode payload: %v", domain.ErrEncryption, err)
	}
	return payload, nil
}

// privateEncrypt performs the raw RSA private-key operation over a PKCS#1
// v1.5 type-01 padded block. crypto/rsa deliberately hides this primitive
// behind hashing signature schemes, so the modular exponentiation is done
// directly; the wire format requires it.
func privateEncrypt(key *rsa.PrivateKey, msg []byte) ([]byte, error) {
	k := key.Size()
	if len(msg) > k-11 {
		return nil, fmt.Errorf("message too long for key size")
	}

	em := make([]byte, k)
	em[1] = 0x01
	for i := 2; i < k-len(msg)-1; i++ {
		em[i] = 0xff
	}
	copy(em[k-len(msg):], msg)

	m := new(big.Int).SetBytes(em)
	ciph := new(big.Int).Exp(m, key.D, key.N)

	out := make([]byte, k)
	ciph.FillBytes(out)
	return out, nil
}

// publicDecrypt reverses privateEncrypt: exponentiation with the public key
// followed by padding removal.
func publicDecrypt(key *rsa.PublicKey, ciphertext []byte) ([]byte, error) {
	k := key.Size()
	if len(ciphertext) != k {
		return nil, fmt.Errorf("ciphertext block has wrong length")
	}

	ciph := new(big.Int).SetBytes(ciphertext)
	if ciph.Cmp(key.N) >= 0 {
		return nil, fmt.Errorf("ciphertext out of range")
	}
	m := new(big.Int).Exp(ciph, big.NewInt(int64(key.E)), key.N)

	em := make([]byte, k)
	m.FillBytes(em)

	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, fmt.Errorf("invalid padding header")
	}
	sep := bytes.IndexByte(em[2:], 0x00)
	if sep < 8 {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range em[2 : 2+sep] {
		if b != 0xff {
			return nil, fmt.Errorf("invalid padding byte")
		}
	}
	return em[2+sep+1:], nil
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

// GenerateKey creates an ephemeral key pair. Used by dev bootstrap and tests.
func GenerateKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}
