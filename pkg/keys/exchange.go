package keys

import (
	"crypto/cipher"
	"fmt"
	gohash "hash"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Nonce is the fixed AEAD nonce. Every key is used for a single message, in
// a single direction.
var Nonce = []byte("unique nonce")

// ExchangeKey is an ephemeral secp256k1 key used for Diffie-Hellman.
type ExchangeKey struct {
	sk *secp256k1.PrivateKey
}

// GenerateExchangeKey samples a fresh exchange key.
func GenerateExchangeKey() (*ExchangeKey, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keys: generate exchange key: %w", err)
	}
	return &ExchangeKey{sk: sk}, nil
}

// Public returns the compressed public point.
func (k *ExchangeKey) Public() []byte {
	return k.sk.PubKey().SerializeCompressed()
}

// ParseExchangePublic checks that data encodes a point, and returns its
// compressed form.
func ParseExchangePublic(data []byte) ([]byte, error) {
	pk, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pk.SerializeCompressed(), nil
}

// Channel derives the ciphers between k and the peer owning peerPublic.
func (k *ExchangeKey) Channel(peerPublic []byte) (*Channel, error) {
	peer, err := secp256k1.ParsePubKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	shared := secp256k1.GenerateSharedSecret(k.sk, peer)
	self := k.Public()
	peerCompressed := peer.SerializeCompressed()

	out, err := deriveAEAD(shared, self, peerCompressed)
	if err != nil {
		return nil, err
	}
	in, err := deriveAEAD(shared, peerCompressed, self)
	if err != nil {
		return nil, err
	}
	return &Channel{out: out, in: in}, nil
}

// deriveAEAD returns the cipher for messages from sender to recipient.
func deriveAEAD(shared, sender, recipient []byte) (cipher.AEAD, error) {
	info := make([]byte, 0, len("secagg share")+len(sender)+len(recipient))
	info = append(info, "secagg share"...)
	info = append(info, sender...)
	info = append(info, recipient...)

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(func() gohash.Hash { return blake3.New() }, shared, nil, info)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("keys: derive: %w", err)
	}
	return chacha20poly1305.New(key)
}

// Channel encrypts messages to one peer and decrypts the peer's messages.
type Channel struct {
	out, in cipher.AEAD
}

// Seal encrypts plaintext for the peer.
func (c *Channel) Seal(plaintext []byte) []byte {
	return c.out.Seal(nil, Nonce, plaintext, nil)
}

// Open decrypts a ciphertext sealed by the peer.
func (c *Channel) Open(ciphertext []byte) ([]byte, error) {
	return c.in.Open(nil, Nonce, ciphertext, nil)
}
