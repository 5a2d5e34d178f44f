package auth

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/maxpert/amqp-peer/interfaces"
)

// FileAuthenticator implements file-based authentication
type FileAuthenticator struct {
	filePath string
	users    map[string]*UserEntry
	mutex    sync.RWMutex
}

// UserEntry represents a user entry in the users file
type UserEntry struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"` // bcrypt hash
	Groups       []string `yaml:"groups,omitempty"`
}

// UsersFile represents the structure of the users file
type UsersFile struct {
	Users []UserEntry `yaml:"users"`
}

// NewFileAuthenticator loads the users file at filePath
func NewFileAuthenticator(filePath string) (*FileAuthenticator, error) {
	auth := &FileAuthenticator{
		filePath: filePath,
		users:    make(map[string]*UserEntry),
	}

	if err := auth.load(); err != nil {
		return nil, fmt.Errorf("failed to load users file: %w", err)
	}

	return auth, nil
}

// HashPassword returns the bcrypt hash stored in a users file
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// WriteUsersFile saves users to path with owner-only permissions
func WriteUsersFile(path string, users []UserEntry) error {
	data, err := yaml.Marshal(UsersFile{Users: users})
	if err != nil {
		return fmt.Errorf("failed to marshal users file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	return nil
}

// load reads and parses the users file
func (f *FileAuthenticator) load() error {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return fmt.Errorf("failed to read users file: %w", err)
	}

	var usersFile UsersFile
	if err := yaml.Unmarshal(data, &usersFile); err != nil {
		return fmt.Errorf("failed to parse users file: %w", err)
	}

	users := make(map[string]*UserEntry, len(usersFile.Users))
	for i := range usersFile.Users {
		user := &usersFile.Users[i]
		if user.Username == "" {
			return fmt.Errorf("users file entry %d has no username", i)
		}
		users[user.Username] = user
	}

	f.mutex.Lock()
	f.users = users
	f.mutex.Unlock()
	return nil
}

// Authenticate validates user credentials
func (f *FileAuthenticator) Authenticate(username, password string) (*interfaces.User, error) {
	f.mutex.RLock()
	entry, exists := f.users[username]
	f.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, username)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), []byte(password)); err != nil {
		return nil, interfaces.ErrInvalidCredentials
	}

	return entry.user(), nil
}

// GetUser retrieves user information
func (f *FileAuthenticator) GetUser(username string) (*interfaces.User, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	entry, exists := f.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, username)
	}

	return entry.user(), nil
}

// RefreshUser updates user information from the backing store
func (f *FileAuthenticator) RefreshUser(user *interfaces.User) error {
	if err := f.load(); err != nil {
		return fmt.Errorf("failed to reload users file: %w", err)
	}

	updated, err := f.GetUser(user.Username)
	if err != nil {
		return err
	}

	user.Groups = updated.Groups
	return nil
}

// Reload reloads the users file from disk
func (f *FileAuthenticator) Reload() error {
	return f.load()
}

func (e *UserEntry) user() *interfaces.User {
	return &interfaces.User{
		Username: e.Username,
		Groups:   append([]string(nil), e.Groups...),
	}
}
