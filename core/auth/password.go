package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"washpos/core/utils"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters, comparable to bcrypt cost >= 12 for offline attacks.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

type PasswordHash struct {
	Hash string
	Salt string
}

func deriveKey(password, pepper string, salt []byte) []byte {
	input := append([]byte(password), []byte(pepper)...)
	return argon2.IDKey(input, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func HashPassword(password, pepper string) (*PasswordHash, error) {
	salt, err := utils.RandBytes(saltLen)
	if err != nil {
		return nil, err
	}
	key := deriveKey(password, pepper, salt)
	return &PasswordHash{
		Hash: base64.RawStdEncoding.EncodeToString(key),
		Salt: base64.RawStdEncoding.EncodeToString(salt),
	}, nil
}

func VerifyPassword(password, pepper string, stored *PasswordHash) (bool, error) {
	salt, err := base64.RawStdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false, err
	}
	expected, err := base64.RawStdEncoding.DecodeString(stored.Hash)
	if err != nil {
		return false, err
	}
	key := deriveKey(password, pepper, salt)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func ParsePasswordHash(hash, salt string) (*PasswordHash, error) {
	if hash == "" || salt == "" {
		return nil, errors.New("empty hash or salt")
	}
	return &PasswordHash{Hash: hash, Salt: salt}, nil
}
