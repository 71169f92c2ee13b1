package key

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"filippo.io/age/agessh"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrNoIdentity       = errors.New("no age identity in key file")
)

var (
	ageGenerateIdentity = age.GenerateX25519Identity
	osOpenFile          = os.OpenFile
	writeString         = io.WriteString
)

// Recipient is an encryption target together with a printable label. SSH
// keys are labelled by type and SHA256 fingerprint, age keys by themselves.
type Recipient struct {
	age.Recipient
	Label string
}

// GenerateAgeIdentityIfNotExist writes an X25519 identity in the age-keygen
// file format to keyPath (mode 0600) and its public key to keyPath.pub.
// An existing keyPath is left untouched.
func GenerateAgeIdentityIfNotExist(keyPath string) error {
	if _, err := os.Stat(keyPath); err == nil {
		log.Info().Str("path", keyPath).Msg("Encryption identity already exists")
		return nil
	}

	log.Info().Str("path", keyPath).Msg("Encryption identity not found, generating a new one")

	identity, err := ageGenerateIdentity()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return err
	}

	privateKeyFile, err := osOpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer privateKeyFile.Close()

	recipient := identity.Recipient().String()
	contents := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), recipient, identity.String())
	if _, err = writeString(privateKeyFile, contents); err != nil {
		return err
	}

	pubKeyPath := keyPath + ".pub"
	pubKeyFile, err := osOpenFile(pubKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer pubKeyFile.Close()

	if _, err = writeString(pubKeyFile, recipient+"\n"); err != nil {
		return err
	}

	log.Info().Str("path", keyPath).Str("recipient", recipient).Msg("Encryption identity generated")
	return nil
}

func LoadIdentity(keyPath string) (*age.X25519Identity, error) {
	f, err := os.Open(keyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keyPath, err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoIdentity, keyPath)
}

// ParseRecipients accepts age1… X25519 public keys and ssh-ed25519 / ssh-rsa
// authorized_keys lines.
func ParseRecipients(entries []string) ([]Recipient, error) {
	out := make([]Recipient, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		r, err := parseRecipient(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRecipient(entry string) (Recipient, error) {
	if strings.HasPrefix(entry, "age1") {
		r, err := age.ParseX25519Recipient(entry)
		if err != nil {
			return Recipient{}, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
		}
		return Recipient{Recipient: r, Label: r.String()}, nil
	}

	if strings.HasPrefix(entry, "ssh-") {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(entry))
		if err != nil {
			return Recipient{}, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
		}
		r, err := agessh.ParseRecipient(entry)
		if err != nil {
			return Recipient{}, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
		}
		return Recipient{Recipient: r, Label: pub.Type() + " " + ssh.FingerprintSHA256(pub)}, nil
	}

	return Recipient{}, fmt.Errorf("%w: unsupported key %.16q", ErrInvalidRecipient, entry)
}
