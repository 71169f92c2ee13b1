package key

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerateAgeIdentityIfNotExist(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name      string
		setup     func(t *testing.T, tempDir string) string
		mockSetup func() func()
		wantErr   bool
		errStr    string
		verify    func(t *testing.T, keyPath string)
	}{
		{
			name: "GenerateNewIdentity",
			setup: func(t *testing.T, tempDir string) string {
				return filepath.Join(tempDir, "age.key")
			},
			verify: func(t *testing.T, keyPath string) {
				st, err := os.Stat(keyPath)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), st.Mode().Perm())

				identity, err := LoadIdentity(keyPath)
				require.NoError(t, err)

				pub, err := os.ReadFile(keyPath + ".pub")
				require.NoError(t, err)
				assert.Equal(t, identity.Recipient().String(), strings.TrimSpace(string(pub)))

				raw, err := os.ReadFile(keyPath)
				require.NoError(t, err)
				assert.Contains(t, string(raw), "# public key: "+identity.Recipient().String())
			},
		},
		{
			name: "DoNotOverwriteExistingIdentity",
			setup: func(t *testing.T, tempDir string) string {
				keyPath := filepath.Join(tempDir, "existing.key")
				require.NoError(t, os.WriteFile(keyPath, []byte("dummy identity"), 0600))
				return keyPath
			},
			verify: func(t *testing.T, keyPath string) {
				got, _ := os.ReadFile(keyPath)
				assert.Equal(t, "dummy identity", string(got))
				_, err := os.Stat(keyPath + ".pub")
				assert.True(t, os.IsNotExist(err))
			},
		},
		{
			name: "CreateNestedDirectories",
			setup: func(t *testing.T, tempDir string) string {
				return filepath.Join(tempDir, "nested", "dir", "age.key")
			},
			verify: func(t *testing.T, keyPath string) {
				_, err := os.Stat(keyPath)
				assert.NoError(t, err)
			},
		},
		{
			name: "FailureMkdirAll",
			setup: func(t *testing.T, tempDir string) string {
				dirPath := filepath.Join(tempDir, "file_as_dir")
				require.NoError(t, os.WriteFile(dirPath, []byte("not a dir"), 0644))
				return filepath.Join(dirPath, "age.key")
			},
			wantErr: true,
		},
		{
			name: "FailureGenerateIdentity",
			setup: func(t *testing.T, tempDir string) string {
				return filepath.Join(tempDir, "fail_generate")
			},
			mockSetup: func() func() {
				old := ageGenerateIdentity
				ageGenerateIdentity = func() (*age.X25519Identity, error) {
					return nil, errors.New("entropy error")
				}
				return func() { ageGenerateIdentity = old }
			},
			wantErr: true,
			errStr:  "entropy error",
		},
		{
			name: "FailureOpenFilePrivate",
			setup: func(t *testing.T, tempDir string) string {
				return filepath.Join(tempDir, "fail_open_private")
			},
			mockSetup: func() func() {
				old := osOpenFile
				osOpenFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
					return nil, errors.New("open error")
				}
				return func() { osOpenFile = old }
			},
			wantErr: true,
			errStr:  "open error",
		},
		{
			name: "FailureOpenFilePublic",
			setup: func(t *testing.T, tempDir string) string {
				return filepath.Join(tempDir, "fail_open_public")
			},
			mockSetup: func() func() {
				old := osOpenFile
				osOpenFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
					if filepath.Ext(name) == ".pub" {
						return nil, errors.New("open pub error")
					}
					return os.OpenFile(name, flag, perm)
				}
				return func() { osOpenFile = old }
			},
			wantErr: true,
			errStr:  "open pub error",
		},
		{
			name: "FailureWrite",
			setup: func(t *testing.T, tempDir string) string {
				return filepath.Join(tempDir, "fail_write")
			},
			mockSetup: func() func() {
				old := writeString
				writeString = func(w io.Writer, s string) (int, error) {
					return 0, errors.New("write error")
				}
				return func() { writeString = old }
			},
			wantErr: true,
			errStr:  "write error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyPath := tt.setup(t, tempDir)
			if tt.mockSetup != nil {
				cleanup := tt.mockSetup()
				defer cleanup()
			}

			err := GenerateAgeIdentityIfNotExist(keyPath)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errStr != "" {
					assert.Equal(t, tt.errStr, err.Error())
				}
				return
			}
			require.NoError(t, err)
			if tt.verify != nil {
				tt.verify(t, keyPath)
			}
		})
	}
}

func TestLoadIdentity(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadIdentity(filepath.Join(dir, "nope"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("garbage", func(t *testing.T) {
		p := filepath.Join(dir, "garbage")
		require.NoError(t, os.WriteFile(p, []byte("not an identity\n"), 0600))
		_, err := LoadIdentity(p)
		assert.Error(t, err)
	})

	t.Run("bare identity line", func(t *testing.T) {
		id, err := age.GenerateX25519Identity()
		require.NoError(t, err)
		p := filepath.Join(dir, "bare")
		require.NoError(t, os.WriteFile(p, []byte(id.String()+"\n"), 0600))

		got, err := LoadIdentity(p)
		require.NoError(t, err)
		assert.Equal(t, id.String(), got.String())
	})
}

func sshAuthorizedKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " ops@example", sshPub
}

func TestParseRecipients(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	ageKey := id.Recipient().String()
	sshKey, sshPub := sshAuthorizedKey(t)

	tests := []struct {
		name       string
		entries    []string
		wantLabels []string
		wantErr    bool
	}{
		{name: "none", entries: nil, wantLabels: []string{}},
		{name: "age key", entries: []string{ageKey}, wantLabels: []string{ageKey}},
		{name: "ssh key", entries: []string{sshKey}, wantLabels: []string{"ssh-ed25519 " + ssh.FingerprintSHA256(sshPub)}},
		{name: "blank entries skipped", entries: []string{" ", ageKey + " "}, wantLabels: []string{ageKey}},
		{name: "bad age key", entries: []string{"age1notakey"}, wantErr: true},
		{name: "bad ssh key", entries: []string{"ssh-ed25519 AAAAbroken"}, wantErr: true},
		{name: "unsupported", entries: []string{"ecdsa-sha2-nistp256 AAAA"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecipients(tt.entries)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecipient)
				return
			}
			require.NoError(t, err)
			labels := make([]string, 0, len(got))
			for _, r := range got {
				labels = append(labels, r.Label)
			}
			assert.Equal(t, tt.wantLabels, labels)
		})
	}
}

func TestRecipientsEncryptToIdentity(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	recipients, err := ParseRecipients([]string{id.Recipient().String()})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients[0])
	require.NoError(t, err)
	_, err = io.WriteString(w, "secret")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := age.Decrypt(&buf, id)
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))
}
