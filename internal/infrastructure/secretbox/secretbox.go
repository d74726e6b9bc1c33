// Package secretbox 负责敏感配置(Cookie)的静态加密。
// 密钥优先取环境变量,否则使用(必要时生成)密钥文件。
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EncryptedPrefix 密文前缀,用于区分明文旧数据
const EncryptedPrefix = "enc:v1:"

const keySize = 32 // AES-256

// Box Cookie加解密器
type Box struct {
	keyFile string
	envKey  string

	mu   sync.Mutex
	aead cipher.AEAD
}

// New 创建加解密器,envKey为空时默认SETTINGS_ENCRYPTION_KEY
func New(keyFile, envKey string) *Box {
	if envKey == "" {
		envKey = "SETTINGS_ENCRYPTION_KEY"
	}
	return &Box{keyFile: keyFile, envKey: envKey}
}

// Encrypt 加密明文;空串与已加密内容原样返回
func (b *Box) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if strings.HasPrefix(plain, EncryptedPrefix) {
		return plain, nil
	}

	aead, err := b.getAEAD()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return EncryptedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密密文;空串与不带前缀的明文原样返回
func (b *Box) Decrypt(ciphered string) (string, error) {
	if ciphered == "" {
		return "", nil
	}
	if !strings.HasPrefix(ciphered, EncryptedPrefix) {
		return ciphered, nil
	}

	aead, err := b.getAEAD()
	if err != nil {
		return "", err
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphered, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("Cookie 解密失败，请检查加密密钥配置: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("Cookie 解密失败，密文损坏")
	}

	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("Cookie 解密失败，请检查加密密钥配置: %w", err)
	}
	return string(plain), nil
}

func (b *Box) getAEAD() (cipher.AEAD, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.aead != nil {
		return b.aead, nil
	}

	key, err := b.loadKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	b.aead = aead
	return aead, nil
}

func (b *Box) loadKey() ([]byte, error) {
	if text := strings.TrimSpace(os.Getenv(b.envKey)); text != "" {
		key, err := base64.RawURLEncoding.DecodeString(text)
		if err != nil || len(key) != keySize {
			return nil, fmt.Errorf("invalid %s: expect base64url-encoded %d-byte key", b.envKey, keySize)
		}
		return key, nil
	}
	return b.loadOrCreateFileKey()
}

func (b *Box) loadOrCreateFileKey() ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(b.keyFile), 0755); err != nil {
		return nil, err
	}

	if raw, err := os.ReadFile(b.keyFile); err == nil {
		key, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(key) != keySize {
			return nil, fmt.Errorf("invalid key file %s", b.keyFile)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	// 临时文件+rename,避免半写密钥
	tmp := b.keyFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(base64.RawURLEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, b.keyFile); err != nil {
		return nil, err
	}
	return key, nil
}
