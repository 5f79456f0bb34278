package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestMain(m *testing.M) {
	kdfIterations = 1_000
	os.Exit(m.Run())
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := newKey(t)
	blob, err := EncryptKey(key, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(blob), key.String()) {
		t.Fatal("encrypted blob contains the plaintext key")
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !got.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("decrypted %s, want %s", got.PublicKey(), key.PublicKey())
	}
}

func TestDecryptKeyFailures(t *testing.T) {
	key := newKey(t)
	blob, err := EncryptKey(key, "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		t.Fatal(err)
	}
	stored.Version = 9
	badVersion, _ := json.Marshal(stored)

	tests := []struct {
		name     string
		blob     []byte
		password string
		want     string
	}{
		{"wrong password", blob, "nope", "decryption failed"},
		{"empty password", blob, "", "password must not be empty"},
		{"not json", []byte("{"), "hunter2", "parsing encrypted key JSON"},
		{"unsupported version", badVersion, "hunter2", "unsupported version 9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptKey(tt.blob, tt.password)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestEncryptKeyRejectsShortKey(t *testing.T) {
	if _, err := EncryptKey(solana.PrivateKey(make([]byte, 32)), "pw"); err == nil {
		t.Fatal("expected error for a 32-byte key")
	}
}

func TestLoadOperatorKey(t *testing.T) {
	key := newKey(t)
	blob, err := EncryptKey(key, "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "operator.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     KeyConfig
		wantErr bool
	}{
		{"raw key", KeyConfig{RawPrivateKey: key.String()}, false},
		{"raw key wins over file", KeyConfig{RawPrivateKey: key.String(), EncryptedKeyPath: "/missing"}, false},
		{"encrypted file", KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}, false},
		{"bad base58", KeyConfig{RawPrivateKey: "0OIl"}, true},
		{"missing file", KeyConfig{EncryptedKeyPath: filepath.Join(t.TempDir(), "none.json"), KeyPassword: "pw"}, true},
		{"nothing configured", KeyConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadOperatorKey(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !got.PublicKey().Equals(key.PublicKey()) {
				t.Errorf("loaded %s, want %s", got.PublicKey(), key.PublicKey())
			}
		})
	}
}
