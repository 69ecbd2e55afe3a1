// Package secrets provides the symmetric codec used for secrets stored
// at rest (TOTP seeds, session records) and for password hashing.
//
// The codec key is process-wide immutable configuration: it is injected
// once at construction and held in a memguard enclave so it never sits
// in plain heap memory between operations.
package secrets

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/rvalente/taskspace/internal/util"
)

// Codec encrypts and decrypts stored secrets with AES-256-GCM and
// computes/verifies argon2id password hashes.
type Codec struct {
	key *memguard.Enclave
}

// NewCodec creates a Codec from a 32-byte key. The input slice is
// wiped; the enclave holds the only copy afterwards.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != util.AESKeySize {
		util.WipeBytes(key)
		return nil, fmt.Errorf("codec key must be exactly %d bytes, got %d", util.AESKeySize, len(key))
	}
	return &Codec{key: memguard.NewEnclave(key)}, nil
}

// Encrypt seals plaintext and returns a base64 string safe to persist.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	buf, err := c.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening codec key: %w", err)
	}
	defer buf.Destroy()

	sealed, err := util.EncryptAES(plaintext, buf.Bytes())
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. The caller owns the
// returned plaintext and should wipe it when done.
func (c *Codec) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening codec key: %w", err)
	}
	defer buf.Destroy()

	return util.DecryptAES(sealed, buf.Bytes())
}

// EncryptString is Encrypt for string plaintext.
func (c *Codec) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt returning a string.
func (c *Codec) DecryptString(encoded string) (string, error) {
	plain, err := c.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	out := string(plain)
	util.WipeBytes(plain)
	return out, nil
}

// passwordRecord is the persisted form of a hashed password: the KDF
// parameters and salt travel with the derived key so parameters can be
// raised later without invalidating existing hashes.
type passwordRecord struct {
	Params util.Argon2idParams `json:"params"`
	Salt   []byte              `json:"salt"`
	Key    []byte              `json:"key"`
}

// HashPassword derives an argon2id record for the given password and
// returns it in a self-describing serialized form.
func (c *Codec) HashPassword(password string) (string, error) {
	salt, err := util.RandomBytes(16)
	if err != nil {
		return "", err
	}
	params := util.DefaultArgon2idParams()
	key, err := util.DeriveArgon2idKey(util.NormalizePassword(password), salt, params)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(passwordRecord{Params: params, Salt: salt, Key: key})
	if err != nil {
		return "", fmt.Errorf("encoding password record: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encoded), nil
}

// VerifyPassword reports whether password matches a stored hash
// produced by HashPassword. The comparison is constant-time.
func (c *Codec) VerifyPassword(stored, password string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return false, fmt.Errorf("decoding password record: %w", err)
	}
	var rec passwordRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, fmt.Errorf("decoding password record: %w", err)
	}
	return util.CompareArgon2idKey(util.NormalizePassword(password), rec.Salt, rec.Params, rec.Key)
}
