// Package aes 提供导出事件载荷的 AES-GCM 加解密
package aes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// ErrCiphertextTooShort 密文长度不足以包含 Nonce
var ErrCiphertextTooShort = errors.New("aes: ciphertext too short")

// Encrypt 使用 GCM 模式加密，返回 base64(nonce || ciphertext)
// 每次加密生成新的随机 Nonce
func Encrypt(data, key []byte) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := aesGCM.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密 Encrypt 的输出
func Decrypt(encoded string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := aesGCM.NonceSize()
	if len(raw) < n {
		return nil, ErrCiphertextTooShort
	}
	return aesGCM.Open(nil, raw[:n], raw[n:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
