package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/vyrodovalexey/avakeys/internal/util"
)

// Encrypt seals plaintext with AES-256-CBC under key using a fresh random
// IV and PKCS#7 padding. The result is base64(IV || ciphertext).
func Encrypt(key, plaintext []byte) (string, error) {
	block, err := newBlock(key, "encrypt")
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", util.NewCryptoError("encrypt", fmt.Errorf("generate iv: %w", err))
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed base64, short or unaligned input and
// bad padding all yield a CryptoError.
func Decrypt(key []byte, blob string) ([]byte, error) {
	block, err := newBlock(key, "decrypt")
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, util.NewCryptoError("decrypt", fmt.Errorf("decode base64: %w", err))
	}
	if len(raw) < 2*aes.BlockSize {
		return nil, util.NewCryptoError("decrypt", errShortInput)
	}
	if len(raw)%aes.BlockSize != 0 {
		return nil, util.NewCryptoError("decrypt", errUnaligned)
	}

	iv, ct := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	out, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, util.NewCryptoError("decrypt", err)
	}
	return out, nil
}

func newBlock(key []byte, op string) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, util.NewCryptoError(op, errKeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, util.NewCryptoError(op, err)
	}
	return block, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errPadding
	}
	want := bytes.Repeat([]byte{byte(n)}, n)
	if subtle.ConstantTimeCompare(data[len(data)-n:], want) != 1 {
		return nil, errPadding
	}
	return data[:len(data)-n], nil
}
