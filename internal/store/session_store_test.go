// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/models"
)

func newTestSessionStore(t *testing.T, encryptor *config.CredentialEncryptor) *SessionStore {
	t.Helper()
	s, err := NewSessionStore(t.TempDir(), encryptor)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	return s
}

func sampleSession(label string) *models.Session {
	s := &models.Session{
		Label: label,
		MamID: "mam-cookie-1234",
	}
	s.PerkAutomation.Wedge.Enabled = true
	s.PerkAutomation.Wedge.PointThreshold = 75000
	return s
}

func TestSessionStoreSaveAndGet(t *testing.T) {
	store := newTestSessionStore(t, nil)

	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Label != "alice" {
		t.Errorf("label = %q, want alice", got.Label)
	}
	if got.MamID != "mam-cookie-1234" {
		t.Errorf("mam_id = %q, want original value", got.MamID)
	}
	if !got.PerkAutomation.Wedge.Enabled {
		t.Error("wedge automation should survive the roundtrip")
	}
	if got.PerkAutomation.Wedge.PointThreshold != 75000 {
		t.Errorf("threshold = %d, want 75000", got.PerkAutomation.Wedge.PointThreshold)
	}
	// Defaults applied on read.
	if got.PerkAutomation.VIP.PointThreshold != models.DefaultPointThreshold {
		t.Errorf("vip threshold = %d, want default %d", got.PerkAutomation.VIP.PointThreshold, models.DefaultPointThreshold)
	}
}

func TestSessionStoreGetMissing(t *testing.T) {
	store := newTestSessionStore(t, nil)

	_, err := store.Get("ghost")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreListSorted(t *testing.T) {
	store := newTestSessionStore(t, nil)

	for _, label := range []string{"charlie", "alice", "bob"} {
		if err := store.Save(sampleSession(label)); err != nil {
			t.Fatalf("Save %s: %v", label, err)
		}
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("len = %d, want 3", len(sessions))
	}
	want := []string{"alice", "bob", "charlie"}
	for i, s := range sessions {
		if s.Label != want[i] {
			t.Errorf("sessions[%d] = %q, want %q", i, s.Label, want[i])
		}
	}
}

func TestSessionStoreListSkipsCorruptFile(t *testing.T) {
	store := newTestSessionStore(t, nil)
	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.dir, "broken.yaml"), []byte("{not yaml: ["), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Label != "alice" {
		t.Errorf("corrupt file should be skipped, got %d sessions", len(sessions))
	}
}

func TestSessionStoreRename(t *testing.T) {
	store := newTestSessionStore(t, nil)
	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Rename("alice", "alice2"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := store.Get("alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("old label should be gone after rename")
	}
	got, err := store.Get("alice2")
	if err != nil {
		t.Fatalf("Get renamed: %v", err)
	}
	if got.MamID != "mam-cookie-1234" {
		t.Error("session contents should survive rename")
	}
}

func TestSessionStoreRenameConflict(t *testing.T) {
	store := newTestSessionStore(t, nil)
	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(sampleSession("bob")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Rename("alice", "bob"); err == nil {
		t.Error("rename onto an existing label must fail")
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := newTestSessionStore(t, nil)
	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Delete("alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete("alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreUpdateRetryState(t *testing.T) {
	store := newTestSessionStore(t, nil)
	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rs := models.RetryState{
		RetryCount:    2,
		LastFailTime:  time.Now().Unix(),
		CooldownUntil: 0,
	}
	if err := store.UpdateRetryState("alice", models.PerkWedge, rs); err != nil {
		t.Fatalf("UpdateRetryState: %v", err)
	}

	got, err := store.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PerkAutomation.Wedge.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", got.PerkAutomation.Wedge.RetryCount)
	}
	// Other fields untouched.
	if got.PerkAutomation.Wedge.PointThreshold != 75000 {
		t.Error("retry update must not clobber other fields")
	}
}

func TestSessionStoreUpdateStatus(t *testing.T) {
	store := newTestSessionStore(t, nil)
	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	points := int64(123456)
	if err := store.UpdateStatus("alice", &models.StatusResult{Points: &points}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := store.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastStatus == nil || got.LastStatus.Points == nil || *got.LastStatus.Points != 123456 {
		t.Error("status snapshot not persisted")
	}
	if got.LastCheck.IsZero() {
		t.Error("LastCheck should be set by UpdateStatus")
	}
}

func TestSessionStoreEncryptionRoundtrip(t *testing.T) {
	encryptor, err := config.NewCredentialEncryptor("a-very-long-test-secret-value")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor: %v", err)
	}
	store := newTestSessionStore(t, encryptor)

	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// The on-disk file must not contain the plaintext cookie.
	raw, err := os.ReadFile(filepath.Join(store.dir, "alice.yaml"))
	if err != nil {
		t.Fatalf("read raw file: %v", err)
	}
	if strings.Contains(string(raw), "mam-cookie-1234") {
		t.Error("plaintext credential found in encrypted session file")
	}
	if !strings.Contains(string(raw), encPrefix) {
		t.Error("encrypted credential marker missing from session file")
	}

	got, err := store.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MamID != "mam-cookie-1234" {
		t.Errorf("decrypted mam_id = %q, want original", got.MamID)
	}
}

func TestSessionStoreEncryptedFileWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	encryptor, err := config.NewCredentialEncryptor("a-very-long-test-secret-value")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor: %v", err)
	}

	encrypted, err := NewSessionStore(dir, encryptor)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	if err := encrypted.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	plain, err := NewSessionStore(dir, nil)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	if _, err := plain.Get("alice"); err == nil {
		t.Error("reading an encrypted session without a secret must fail")
	}
}

func TestSessionStoreRejectsUnsafeLabels(t *testing.T) {
	base := t.TempDir()
	store, err := NewSessionStore(filepath.Join(base, "sessions"), nil)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}

	// A file outside the sessions directory that a traversal label
	// would reach.
	victim := filepath.Join(base, "victim.yaml")
	if err := os.WriteFile(victim, []byte("label: victim\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	unsafe := []string{"../victim", "a/b", "..", ".hidden", " leading", ""}
	for _, label := range unsafe {
		if err := store.Delete(label); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("Delete(%q) err = %v, want ErrInvalidLabel", label, err)
		}
		if _, err := store.Get(label); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("Get(%q) err = %v, want ErrInvalidLabel", label, err)
		}
		if err := store.Save(sampleSession(label)); label != "" && !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidLabel", label, err)
		}
	}

	if err := store.Save(sampleSession("alice")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Rename("alice", "../victim"); !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("Rename to traversal label err = %v, want ErrInvalidLabel", err)
	}

	if _, err := os.Stat(victim); err != nil {
		t.Errorf("file outside the sessions directory was touched: %v", err)
	}
}
