package license

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Signer 持有签发私钥。私钥只在进程启动时加载一次，
// 只通过 Sign 使用，Close 后清零。
type Signer struct {
	mu     sync.RWMutex
	key    ed25519.PrivateKey
	public ed25519.PublicKey
}

// NewSigner 接管传入的私钥，调用方不应再持有该切片
func NewSigner(key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(key))
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, key.Public().(ed25519.PublicKey))
	return &Signer{key: key, public: pub}, nil
}

// GenerateSigner 生成新的密钥对，主要用于测试与 keygen
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewSigner(priv)
}

// Sign 对编码后的载荷字节签名
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrSignerClosed
	}
	return ed25519.Sign(s.key, payload), nil
}

// Public 返回对应的公钥，公钥可以随意复制分发
func (s *Signer) Public() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(s.public))
	copy(out, s.public)
	return out
}

// Close 清零私钥
func (s *Signer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
	return nil
}

// KeyID 公钥的短标识，用于日志和展示
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}
