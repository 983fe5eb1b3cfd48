package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Session is the authenticated identity the rest of the client reads. The
// channel manager consumes the token; it never owns or mutates the session.
type Session struct {
	UserID        string
	Username      string
	Token         string
	Authenticated bool
}

// FromToken builds a session from a bearer token, pulling identity from its
// claims. An unparsable or expired token yields an unauthenticated session.
func FromToken(token string) Session {
	claims, err := ParseClaims(token)
	if err != nil || claims.Expired() {
		return Session{}
	}
	return Session{
		UserID:        claims.UserID,
		Username:      claims.Username,
		Token:         token,
		Authenticated: true,
	}
}

// Profile is what survives between runs: where to reach the service and the
// last issued token. Stored encrypted under the user config dir.
type Profile struct {
	APIBaseURL string `json:"api_base_url"`
	SocketURL  string `json:"socket_url"`
	Username   string `json:"username"`
	Token      string `json:"token"`
}

func GetConfigDir(profileName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cldztalk", profileName)
}

func getEncryptionKey() []byte {
	paths := []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	var id string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}

	if id == "" {
		hostname, _ := os.Hostname()
		id = hostname
	}

	hash := sha256.Sum256([]byte(id))
	return hash[:]
}

func encrypt(data []byte) (string, error) {
	key := getEncryptionKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	key := getEncryptionKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func Load(profileName string) *Profile {
	configDir := GetConfigDir(profileName)
	if configDir == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(configDir, "profile.json"))
	if err != nil {
		return nil
	}

	decrypted, err := decrypt(string(data))
	if err != nil {
		// Plaintext profile from an older build: accept it once and rewrite
		// encrypted.
		var profile Profile
		if err := json.Unmarshal(data, &profile); err == nil {
			Save(profileName, &profile)
			return &profile
		}
		return nil
	}

	var profile Profile
	if err := json.Unmarshal(decrypted, &profile); err != nil {
		return nil
	}
	return &profile
}

func Save(profileName string, profile *Profile) error {
	configDir := GetConfigDir(profileName)
	if configDir == "" {
		return fmt.Errorf("could not get config directory")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "profile.json"), []byte(encrypted), 0600)
}

func Clear(profileName string) {
	configDir := GetConfigDir(profileName)
	if configDir != "" {
		os.Remove(filepath.Join(configDir, "profile.json"))
	}
}
