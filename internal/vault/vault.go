// Package vault encrypts and decrypts OAuth credentials at rest. Two envelope
// variants exist in production data: an authenticated AES-256-GCM envelope
// carrying a tag, and an older AES-256-CBC envelope without one. Decryption
// supports both; encryption always writes the CBC variant so rotated tokens
// stay readable by un-migrated consumers.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Envelope is the JSON ciphertext container stored in credential columns.
type Envelope struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	Tag       string `json:"tag,omitempty"`
}

// Vault performs envelope encryption with a key derived once at construction.
type Vault struct {
	key []byte
}

// New derives a 32-byte AES key from the configured secret and legacy salt.
func New(secret, salt string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: secret cannot be empty")
	}

	key, err := scrypt.Key([]byte(secret), []byte(salt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("vault: key derivation failed: %w", err)
	}

	return &Vault{key: key}, nil
}

// Decrypt unwraps an envelope back to plaintext. Records written before
// encryption was introduced hold raw plaintext, so any value that does not
// parse and decrypt as an envelope is returned unchanged. Callers cannot
// distinguish a legacy plaintext row from a corrupted envelope here; that
// trade-off is documented in DESIGN.md.
func (v *Vault) Decrypt(value string) string {
	var env Envelope
	if err := json.Unmarshal([]byte(value), &env); err != nil {
		return value
	}
	if env.Encrypted == "" || env.IV == "" {
		return value
	}

	ciphertext, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return value
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return value
	}

	var plaintext []byte
	if env.Tag == "" {
		plaintext, err = v.decryptCBC(ciphertext, iv)
	} else {
		var tag []byte
		tag, err = hex.DecodeString(env.Tag)
		if err != nil {
			return value
		}
		plaintext, err = v.decryptGCM(ciphertext, iv, tag)
	}
	if err != nil {
		return value
	}

	return string(plaintext)
}

// Encrypt wraps plaintext in the legacy CBC envelope with a fresh random IV.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("vault: failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	env := Envelope{
		Encrypted: hex.EncodeToString(ciphertext),
		IV:        hex.EncodeToString(iv),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("vault: failed to marshal envelope: %w", err)
	}

	return string(out), nil
}

func (v *Vault) decryptCBC(ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, errors.New("vault: invalid iv length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("vault: invalid ciphertext length")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func (v *Vault) decryptGCM(ciphertext, iv, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}

	if len(iv) == 0 {
		return nil, errors.New("vault: empty iv")
	}

	// Legacy writers used 16-byte GCM nonces rather than the Go default of 12
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	if len(tag) != gcm.Overhead() {
		return nil, errors.New("vault: invalid tag length")
	}

	return gcm.Open(nil, iv, append(ciphertext, tag...), nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("vault: invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("vault: invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("vault: invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
