package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const pemTypePrivateKey = "PRIVATE KEY"

// KeyProvider authenticates with a local Ed25519 key file.
// The key is generated on first login and reused afterwards.
type KeyProvider struct {
	path   string
	logger *zap.Logger

	mu  sync.Mutex
	key ed25519.PrivateKey
}

// NewKeyProvider creates a provider backed by the PEM file at path.
// A leading "~/" is expanded to the user's home directory.
func NewKeyProvider(path string, logger *zap.Logger) *KeyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyProvider{path: expandHome(path), logger: logger}
}

// Path returns the key file location.
func (p *KeyProvider) Path() string {
	return p.path
}

// Login loads (or creates) the key and returns its self-authenticating principal.
func (p *KeyProvider) Login(ctx context.Context) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		key, err := p.loadOrCreate()
		if err != nil {
			return "", err
		}
		p.key = key
	}

	return SelfAuthenticating(p.key.Public().(ed25519.PublicKey))
}

// Logout forgets the loaded key. The file stays on disk.
func (p *KeyProvider) Logout(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = nil
	return nil
}

func (p *KeyProvider) loadOrCreate() (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(p.path)
	if err == nil {
		return parseKey(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	out := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der})
	if err := os.WriteFile(p.path, out, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	p.logger.Info("generated identity key", zap.String("path", p.path))
	return key, nil
}

func parseKey(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivateKey {
		return nil, errors.New("key file is not a PEM private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key file holds %T, want ed25519", parsed)
	}
	return key, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
