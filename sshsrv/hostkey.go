package sshsrv

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// loadOrGenerateHostKey reads an OpenSSH-format Ed25519 private key from
// path, generating and persisting a fresh one on first run.
func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if data, err := os.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("sshsrv: parse host key %s: %w", path, err)
		}
		return signer, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("sshsrv: read host key %s: %w", path, err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sshsrv: generate host key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "sshchatd host key")
	if err != nil {
		return nil, fmt.Errorf("sshsrv: marshal host key: %w", err)
	}
	data := pem.EncodeToMemory(block)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("sshsrv: write host key %s: %w", path, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("sshsrv: parse freshly generated host key: %w", err)
	}
	return signer, nil
}
