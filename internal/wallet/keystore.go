package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// keystoreFile is the on-disk JSON format for an encrypted wallet. Each
// wallet seed derives exactly one identity, recorded in Account once it
// has been derived.
type keystoreFile struct {
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	EncryptedSeed []byte        `json:"encrypted_seed"`
	Account       *AccountEntry `json:"account,omitempty"`
}

// AccountEntry records the identity a wallet's seed derives to.
type AccountEntry struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"` // hex-encoded
}

// Decode parses the stored hex public key back into a types.PublicKey.
func (a AccountEntry) Decode() (types.PublicKey, error) {
	raw, err := hex.DecodeString(a.PublicKey)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("decode account public key: %w", err)
	}
	return types.PublicKeyFromBytes(raw)
}

// Keystore manages encrypted key storage on disk.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// walletPath returns the file path for a wallet by name.
func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create creates a new encrypted wallet file from a mnemonic seed.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keystoreFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
	}

	return ks.writeFile(path, &kf)
}

// Load decrypts a wallet and returns the seed bytes.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}

	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}

	return seed, nil
}

// SetAccount records the identity a wallet's seed derives to. It is
// idempotent: setting the same public key twice is a no-op, and
// overwriting with a different key is rejected since a wallet's
// identity is fixed once its seed is created.
func (ks *Keystore) SetAccount(walletName string, acct AccountEntry) error {
	path := ks.walletPath(walletName)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	if kf.Account != nil {
		if kf.Account.PublicKey == acct.PublicKey {
			return nil
		}
		return fmt.Errorf("wallet %q already has a derived identity", walletName)
	}

	kf.Account = &acct
	return ks.writeFile(path, kf)
}

// GetAccount returns the wallet's derived identity, or nil if it has not
// been recorded yet.
func (ks *Keystore) GetAccount(walletName string) (*AccountEntry, error) {
	kf, err := ks.readFile(ks.walletPath(walletName))
	if err != nil {
		return nil, err
	}
	return kf.Account, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
