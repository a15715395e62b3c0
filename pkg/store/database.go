package store

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var ErrAccountExists = errors.New("account already exists")
var ErrAccountNotFound = errors.New("account not found")
var ErrInvalidName = errors.New("invalid account name")

// Database maps account names to base32 encoded secrets.
type Database struct {
	Accounts map[string]string `json:"accounts"`
}

func NewDatabase() *Database {
	return &Database{Accounts: make(map[string]string)}
}

// Add stores a new account. Names are unique; an existing name is never
// overwritten.
func (db *Database) Add(name, secret string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if db.Accounts == nil {
		db.Accounts = make(map[string]string)
	}
	if _, ok := db.Accounts[name]; ok {
		return errors.Wrapf(ErrAccountExists, "%q", name)
	}
	db.Accounts[name] = secret
	return nil
}

// Remove deletes an account and reports whether it existed.
func (db *Database) Remove(name string) bool {
	if _, ok := db.Accounts[name]; !ok {
		return false
	}
	delete(db.Accounts, name)
	return true
}

func (db *Database) Secret(name string) (string, error) {
	secret, ok := db.Accounts[name]
	if !ok {
		return "", errors.Wrapf(ErrAccountNotFound, "%q", name)
	}
	return secret, nil
}

// Names returns the account names in sorted order.
func (db *Database) Names() []string {
	var names = make([]string, 0, len(db.Accounts))
	for name := range db.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
