package file

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	masterKeySize = 32
	nonceSize     = 24
	sealInfo      = "biogames identity record v1"
)

var errUnsealFailed = errors.New("identity record could not be decrypted")

// deriveKey expands the local master key into the secretbox key for identity records
func deriveKey(master []byte) (*[32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, master, nil, []byte(sealInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// seal encrypts plaintext, prefixing the random nonce
func seal(key *[32]byte, plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

func unseal(key *[32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, errUnsealFailed
	}
	return plaintext, nil
}
