package state

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HasPassword reports whether a management password is currently set.
func (s *Store) HasPassword() bool {
	s.pwMu.Lock()
	defer s.pwMu.Unlock()
	hash, err := s.readPasswordHash()
	return err == nil && hash != ""
}

// CheckPassword reports whether pw matches the stored hash. Returns
// true (allow) when no password is set, matching the original's
// "no password set, allow access" rule.
func (s *Store) CheckPassword(pw string) bool {
	s.pwMu.Lock()
	hash, err := s.readPasswordHash()
	s.pwMu.Unlock()
	if err != nil || hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// SetPassword hashes and stores pw, or clears the password entirely
// when pw is empty.
func (s *Store) SetPassword(pw string) error {
	s.pwMu.Lock()
	defer s.pwMu.Unlock()

	writeAtomic := func(data []byte) error {
		tmp := s.path("password") + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return err
		}
		if err := os.Rename(tmp, s.path("password")); err != nil {
			os.Remove(tmp)
			return err
		}
		return nil
	}

	if pw == "" {
		if err := writeAtomic(nil); err != nil {
			return fmt.Errorf("state: clear password: %w", err)
		}
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("state: hash password: %w", err)
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir data dir: %w", err)
	}
	if err := writeAtomic(hash); err != nil {
		return fmt.Errorf("state: write password: %w", err)
	}
	return nil
}

func (s *Store) readPasswordHash() (string, error) {
	data, err := os.ReadFile(s.path("password"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
