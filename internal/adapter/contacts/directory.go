// Package contacts resolves wallet UIDs to the public keys their vouchers are
// signed with.
package contacts

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"offline-wallet/internal/adapter/keystore"
	"offline-wallet/internal/core/domain"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MemoryDirectory implements ports.ContactDirectory in memory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string]domain.Contact
}

// NewMemoryDirectory creates a directory holding the given contacts.
func NewMemoryDirectory(contacts ...domain.Contact) *MemoryDirectory {
	d := &MemoryDirectory{contacts: make(map[string]domain.Contact, len(contacts))}
	for _, c := range contacts {
		d.contacts[c.UID] = c
	}
	return d
}

func (d *MemoryDirectory) LookupPublicKey(ctx context.Context, uid string) (ed25519.PublicKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[uid]
	if !ok {
		return nil, apperror.ErrUnknownSender(uid)
	}
	return c.PublicKey, nil
}

func (d *MemoryDirectory) Contacts(ctx context.Context) ([]domain.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedContacts(d.contacts), nil
}

func (d *MemoryDirectory) Add(ctx context.Context, contact domain.Contact) error {
	if err := validateContact(contact); err != nil {
		return err
	}
	d.mu.Lock()
	d.contacts[contact.UID] = contact
	d.mu.Unlock()
	return nil
}

// fileContact is the on-disk shape of a contact.
type fileContact struct {
	UID       string `yaml:"uid"`
	Name      string `yaml:"name,omitempty"`
	PublicKey string `yaml:"public_key"`
}

type contactsFile struct {
	Contacts []fileContact `yaml:"contacts"`
}

// FileDirectory implements ports.ContactDirectory on a YAML file:
//
//	contacts:
//	  - uid: U123
//	    name: Alice
//	    public_key: |
//	      -----BEGIN PUBLIC KEY-----
//	      ...
//
// The wallet's own identity is always resolvable, so self-issued vouchers
// can be redeemed locally.
type FileDirectory struct {
	path string
	self domain.Contact
	log  zerolog.Logger

	mu       sync.RWMutex
	contacts map[string]domain.Contact
}

// OpenFileDirectory loads path. A missing file is an empty directory.
func OpenFileDirectory(path string, self domain.Contact, log zerolog.Logger) (*FileDirectory, error) {
	d := &FileDirectory{path: path, self: self, log: log, contacts: make(map[string]domain.Contact)}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *FileDirectory) load() error {
	raw, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read contacts: %w", err)
	}

	var f contactsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse contacts %s: %w", d.path, err)
	}

	for i, fc := range f.Contacts {
		if fc.UID == "" {
			return fmt.Errorf("contact #%d: uid is required", i+1)
		}
		pub, err := keystore.ParsePublicKeyPEM(fc.PublicKey)
		if err != nil {
			return fmt.Errorf("contact %s: %w", fc.UID, err)
		}
		d.contacts[fc.UID] = domain.Contact{UID: fc.UID, Name: fc.Name, PublicKey: pub}
	}

	d.log.Debug().Int("contacts", len(d.contacts)).Str("path", d.path).Msg("Contacts loaded")
	return nil
}

func (d *FileDirectory) LookupPublicKey(ctx context.Context, uid string) (ed25519.PublicKey, error) {
	if uid != "" && uid == d.self.UID && len(d.self.PublicKey) > 0 {
		return d.self.PublicKey, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[uid]
	if !ok {
		return nil, apperror.ErrUnknownSender(uid)
	}
	return c.PublicKey, nil
}

func (d *FileDirectory) Contacts(ctx context.Context) ([]domain.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedContacts(d.contacts), nil
}

// Add inserts or replaces a contact and rewrites the file.
func (d *FileDirectory) Add(ctx context.Context, contact domain.Contact) error {
	if err := validateContact(contact); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, had := d.contacts[contact.UID]
	d.contacts[contact.UID] = contact
	if err := d.writeLocked(); err != nil {
		if had {
			d.contacts[contact.UID] = prev
		} else {
			delete(d.contacts, contact.UID)
		}
		return apperror.InternalError(err)
	}

	d.log.Info().Str("uid", contact.UID).Msg("Contact saved")
	return nil
}

// writeLocked replaces the file through a temp file and rename.
func (d *FileDirectory) writeLocked() error {
	var f contactsFile
	for _, c := range sortedContacts(d.contacts) {
		pemText, err := keystore.EncodePublicKeyPEM(c.PublicKey)
		if err != nil {
			return fmt.Errorf("contact %s: %w", c.UID, err)
		}
		f.Contacts = append(f.Contacts, fileContact{UID: c.UID, Name: c.Name, PublicKey: pemText})
	}

	raw, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create contacts dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".contacts-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write contacts: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync contacts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close contacts: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("replace contacts: %w", err)
	}
	return nil
}

func validateContact(c domain.Contact) error {
	if strings.TrimSpace(c.UID) == "" {
		return apperror.Validation("contact uid is required")
	}
	if len(c.PublicKey) != ed25519.PublicKeySize {
		return apperror.Validation("contact public key must be an Ed25519 key")
	}
	return nil
}

func sortedContacts(m map[string]domain.Contact) []domain.Contact {
	out := make([]domain.Contact, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}
