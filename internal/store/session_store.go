// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package store persists application state to flat files: one YAML file
// per session keyed by label, and a single capped JSON event log. Both
// stores serialize their read-modify-write cycles with a mutex because
// independent automation timers write concurrently.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/models"
)

// ErrSessionNotFound is returned when no session exists for a label.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidLabel is returned for labels that are not safe to use as
// file names.
var ErrInvalidLabel = errors.New("invalid session label")

// labelPattern mirrors the API's session_label rule. Labels become file
// names under the data directory, so the store enforces the charset
// itself rather than trusting callers to have validated.
var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{0,63}$`)

func validLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// encPrefix marks an encrypted credential in a persisted session file.
const encPrefix = "enc:"

// SessionStore persists sessions as one YAML file per label. Automation
// ticks reload from it before every decision so operator edits are
// picked up without a restart.
type SessionStore struct {
	dir       string
	mu        sync.Mutex
	encryptor *config.CredentialEncryptor
}

// NewSessionStore creates a session store rooted at dir, creating the
// directory if needed. encryptor may be nil, in which case credentials
// are stored as plaintext.
func NewSessionStore(dir string, encryptor *config.CredentialEncryptor) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory %s: %w", dir, err)
	}
	return &SessionStore{dir: dir, encryptor: encryptor}, nil
}

// Save upserts a session, applying defaults before write. The previous
// file for the label is overwritten atomically.
func (s *SessionStore) Save(session *models.Session) error {
	if session.Label == "" {
		return fmt.Errorf("session label is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session.ApplyDefaults()
	return s.writeLocked(session)
}

// Get loads the session for a label.
func (s *SessionStore) Get(label string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(label)
}

// List loads every persisted session, sorted by label.
func (s *SessionStore) List() ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := make([]*models.Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		label := strings.TrimSuffix(entry.Name(), ".yaml")
		session, err := s.readLocked(label)
		if err != nil {
			// A single corrupt file must not hide the other sessions.
			logging.Warn().Err(err).Str("label", label).Msg("Skipping unreadable session file")
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Label < sessions[j].Label
	})
	return sessions, nil
}

// Labels returns the labels of every persisted session, sorted.
func (s *SessionStore) Labels() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	labels := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		labels = append(labels, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(labels)
	return labels, nil
}

// Rename moves a session to a new label. The file is renamed in place,
// not copied, so inode-level state (backups, watches) follows it.
func (s *SessionStore) Rename(oldLabel, newLabel string) error {
	if oldLabel == newLabel {
		return nil
	}
	if err := validLabel(newLabel); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.readLocked(oldLabel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(s.path(newLabel)); err == nil {
		return fmt.Errorf("session %q already exists", newLabel)
	}

	if err := os.Rename(s.path(oldLabel), s.path(newLabel)); err != nil {
		return fmt.Errorf("failed to rename session file: %w", err)
	}

	session.Label = newLabel
	return s.writeLocked(session)
}

// Delete removes the persisted file for a label.
func (s *SessionStore) Delete(label string) error {
	if err := validLabel(label); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(label)); err != nil {
		if os.IsNotExist(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// UpdateRetryState persists new backoff state for one (session, perk)
// pair. It re-reads the file under the lock so concurrent operator
// edits to other fields are not clobbered.
func (s *SessionStore) UpdateRetryState(label string, perk models.PerkType, rs models.RetryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.readLocked(label)
	if err != nil {
		return err
	}
	cfg := session.PerkAutomation.ForPerk(perk)
	if cfg == nil {
		return fmt.Errorf("unknown perk type %q", perk)
	}
	cfg.RetryState = rs
	return s.writeLocked(session)
}

// UpdateStatus persists the latest observed tracker status snapshot.
func (s *SessionStore) UpdateStatus(label string, status *models.StatusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.readLocked(label)
	if err != nil {
		return err
	}
	session.LastStatus = status
	session.LastCheck = time.Now().UTC()
	return s.writeLocked(session)
}

func (s *SessionStore) path(label string) string {
	return filepath.Join(s.dir, label+".yaml")
}

// readLocked loads and decodes one session file. Caller holds s.mu.
func (s *SessionStore) readLocked(label string) (*models.Session, error) {
	if err := validLabel(label); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(label))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	session := &models.Session{}
	if err := yaml.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to parse session file for %q: %w", label, err)
	}

	// The file name is authoritative for the label.
	session.Label = label
	session.ApplyDefaults()

	if err := s.decryptCredential(session); err != nil {
		return nil, err
	}
	return session, nil
}

// writeLocked encodes and atomically writes one session file.
// Caller holds s.mu.
func (s *SessionStore) writeLocked(session *models.Session) error {
	if err := validLabel(session.Label); err != nil {
		return err
	}

	persisted := *session
	if err := s.encryptCredential(&persisted); err != nil {
		return err
	}

	data, err := yaml.Marshal(&persisted)
	if err != nil {
		return fmt.Errorf("failed to encode session %q: %w", session.Label, err)
	}

	// Write to a temp file and rename so a crash mid-write never
	// leaves a truncated session file.
	tmp := s.path(session.Label) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path(session.Label)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *SessionStore) encryptCredential(session *models.Session) error {
	if s.encryptor == nil || session.MamID == "" || strings.HasPrefix(session.MamID, encPrefix) {
		return nil
	}
	ciphertext, err := s.encryptor.Encrypt(session.MamID)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential for %q: %w", session.Label, err)
	}
	session.MamID = encPrefix + ciphertext
	return nil
}

func (s *SessionStore) decryptCredential(session *models.Session) error {
	if !strings.HasPrefix(session.MamID, encPrefix) {
		return nil
	}
	if s.encryptor == nil {
		return fmt.Errorf("session %q has an encrypted credential but no encryption secret is configured", session.Label)
	}
	plaintext, err := s.encryptor.Decrypt(strings.TrimPrefix(session.MamID, encPrefix))
	if err != nil {
		return fmt.Errorf("failed to decrypt credential for %q: %w", session.Label, err)
	}
	session.MamID = plaintext
	return nil
}
