// Package keys holds the client key material of a session: the signing key
// assigned at registration, the ephemeral key agreed on during key exchange,
// and the pairwise ciphers derived from it.
package keys

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/taurusgroup/secagg/internal/hash"
)

var (
	ErrInvalidKey       = errors.New("keys: invalid key encoding")
	ErrInvalidSignature = errors.New("keys: invalid signature")
)

// SigningKeySize is the length of an encoded SigningKey.
const SigningKeySize = secp256k1.PrivKeyBytesLen

// SigningKey is an ECDSA key over secp256k1.
//
// Messages are signed on their blake3 digest in a caller chosen context.
type SigningKey struct {
	sk *secp256k1.PrivateKey
}

// VerificationKey is the public part of a SigningKey.
type VerificationKey struct {
	pk *secp256k1.PublicKey
}

// GenerateSigningKey samples a fresh signing key.
func GenerateSigningKey() (*SigningKey, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keys: generate signing key: %w", err)
	}
	return &SigningKey{sk: sk}, nil
}

// ParseSigningKey decodes a key produced by SigningKey.Bytes.
func ParseSigningKey(data []byte) (*SigningKey, error) {
	if len(data) != SigningKeySize {
		return nil, fmt.Errorf("%w: signing key is %d bytes", ErrInvalidKey, len(data))
	}
	sk := secp256k1.PrivKeyFromBytes(data)
	if sk.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero signing key", ErrInvalidKey)
	}
	return &SigningKey{sk: sk}, nil
}

// Bytes returns the 32 byte big endian scalar.
func (k *SigningKey) Bytes() []byte {
	return k.sk.Serialize()
}

// VerificationKey returns the matching public key.
func (k *SigningKey) VerificationKey() *VerificationKey {
	return &VerificationKey{pk: k.sk.PubKey()}
}

// Sign returns the DER encoded signature of msg in the given context.
func (k *SigningKey) Sign(context string, msg []byte) []byte {
	return ecdsa.Sign(k.sk, digest(context, msg)).Serialize()
}

// ParseVerificationKey decodes a compressed or uncompressed point.
func ParseVerificationKey(data []byte) (*VerificationKey, error) {
	pk, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &VerificationKey{pk: pk}, nil
}

// Bytes returns the 33 byte compressed point.
func (v *VerificationKey) Bytes() []byte {
	return v.pk.SerializeCompressed()
}

// Verify checks a signature produced by SigningKey.Sign.
func (v *VerificationKey) Verify(context string, msg, signature []byte) error {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !sig.Verify(digest(context, msg), v.pk) {
		return ErrInvalidSignature
	}
	return nil
}

func digest(context string, msg []byte) []byte {
	h := hash.New("secagg signature " + context)
	if err := h.WriteAny(msg); err != nil {
		panic(fmt.Sprintf("keys.digest: internal hash failure: %v", err))
	}
	return h.Sum()
}
