package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"steward/internal/model"
	"steward/pkg/logging"
)

// KeyPair is an OpenSSH key pair.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair creates an ed25519 key pair. The public key is returned in
// authorized_keys format.
func GenerateKeyPair(comment string) (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to encode private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to encode public key: %w", err)
	}
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		authorized += " " + comment
	}
	return KeyPair{PrivateKey: string(pem.EncodeToMemory(block)), PublicKey: authorized}, nil
}

// ServerStore is the part of the record store Keys needs.
type ServerStore interface {
	GetServer(ctx context.Context, id string) (*model.Server, error)
	UpdateServer(ctx context.Context, s *model.Server) error
}

// Keys generates server key pairs on first use and writes them out as
// identity files.
type Keys struct {
	store ServerStore
	dir   string
	group singleflight.Group
}

// NewKeys returns a key manager writing identity files under dir. An empty
// dir keeps keys in the store only.
func NewKeys(store ServerStore, dir string) *Keys {
	return &Keys{store: store, dir: dir}
}

// Ensure returns the server with a persisted key pair, generating one if
// needed. Concurrent callers for the same server share one generation.
func (k *Keys) Ensure(ctx context.Context, serverID string) (*model.Server, error) {
	v, err, _ := k.group.Do(serverID, func() (interface{}, error) {
		srv, err := k.store.GetServer(ctx, serverID)
		if err != nil {
			return nil, err
		}
		if srv.PrivateKey == "" {
			pair, err := GenerateKeyPair(srv.FullDomain())
			if err != nil {
				return nil, err
			}
			srv.PrivateKey = pair.PrivateKey
			srv.PublicKey = pair.PublicKey
			if err := k.store.UpdateServer(ctx, srv); err != nil {
				return nil, fmt.Errorf("failed to persist key of %s: %w", srv.FullDomain(), err)
			}
			logging.Info(remoteSubsystem, "Generated key pair for server %s", srv.FullDomain())
		}
		if k.dir != "" {
			if err := k.materialize(srv); err != nil {
				return nil, err
			}
		}
		return srv, nil
	})
	if err != nil {
		return nil, err
	}
	srv := *v.(*model.Server)
	return &srv, nil
}

// IdentityFile is where the private key of a server is written.
func (k *Keys) IdentityFile(s *model.Server) string {
	if k.dir == "" {
		return ""
	}
	return filepath.Join(k.dir, s.FullDomain())
}

func (k *Keys) materialize(s *model.Server) error {
	path := k.IdentityFile(s)
	if existing, err := os.ReadFile(path); err == nil && string(existing) == s.PrivateKey {
		return nil
	}
	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(s.PrivateKey), 0o600); err != nil {
		return fmt.Errorf("failed to write identity file %s: %w", path, err)
	}
	if err := os.WriteFile(path+".pub", []byte(s.PublicKey+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write public key %s.pub: %w", path, err)
	}
	return nil
}

// SSHConfigEntry renders an OpenSSH client config block for a server.
func SSHConfigEntry(s *model.Server, identityFile string) string {
	var b strings.Builder
	b.WriteString("Host " + s.FullDomain() + "\n")
	b.WriteString("  HostName " + s.IP + "\n")
	if s.SSHPort != 0 {
		b.WriteString("  Port " + strconv.Itoa(s.SSHPort) + "\n")
	}
	if s.Login != "" {
		b.WriteString("  User " + s.Login + "\n")
	}
	if identityFile != "" {
		b.WriteString("  IdentityFile " + identityFile + "\n")
		b.WriteString("  IdentitiesOnly yes\n")
	}
	return b.String()
}
