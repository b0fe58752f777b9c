package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"

	"github.com/scrogson/walle/pkg/key"
	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/store"
	"github.com/scrogson/walle/pkg/wallet"
)

const (
	configDirEnv  = "WALLECTL_CONFIG_DIR"
	storeFileName = "wallets.db"
)

// SecretReader prompts for input that must not be echoed.
type SecretReader interface {
	ReadSecret(prompt string) (string, error)
}

// terminalSecrets reads secrets with echo disabled when stdin is a terminal and
// line by line otherwise, so that secrets can be piped in.
type terminalSecrets struct {
	in     *os.File
	prompt io.Writer
	lines  *bufio.Reader
}

func newTerminalSecrets() *terminalSecrets {
	return &terminalSecrets{in: os.Stdin, prompt: os.Stderr}
}

func (s *terminalSecrets) ReadSecret(prompt string) (string, error) {
	fmt.Fprintf(s.prompt, "%s: ", prompt)

	fd := int(s.in.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(s.prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(prompt), err)
		}
		return string(secret), nil
	}

	if s.lines == nil {
		s.lines = bufio.NewReader(s.in)
	}
	line, err := s.lines.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(prompt), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// app holds what every command needs. The store is opened lazily so that
// commands which never touch it do not create the data directory.
type app struct {
	configDir string
	params    keystore.Params

	secrets SecretReader
	logger  log.Logger
	store   *store.KeystoreStore
	closeDB func() error
}

func newApp() *app {
	return &app{
		params:  keystore.DefaultParams,
		secrets: newTerminalSecrets(),
		logger:  log.NewNoopLogger(),
	}
}

func (a *app) openStore() (*store.KeystoreStore, error) {
	if a.store != nil {
		return a.store, nil
	}

	dir, err := a.dataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	db, err := store.ConnectToDB(store.DatabaseConfig{
		Driver: store.DriverSqlite,
		Name:   filepath.Join(dir, storeFileName),
	}, a.logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	a.store = store.NewKeystoreStore(db)
	a.closeDB = sqlDB.Close
	a.logger.Debug("opened wallet store", "dir", dir)
	return a.store, nil
}

func (a *app) close() {
	if a.closeDB != nil {
		if err := a.closeDB(); err != nil {
			a.logger.Warn("failed to close wallet store", "error", err)
		}
		a.closeDB = nil
		a.store = nil
	}
}

// dataDir is --config-dir, then WALLECTL_CONFIG_DIR, then <user config dir>/walle.
func (a *app) dataDir() (string, error) {
	if a.configDir != "" {
		return a.configDir, nil
	}
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir, nil
	}
	userConfDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(userConfDir, "walle"), nil
}

// lookup finds a wallet by address or, failing that, by name.
func (a *app) lookup(nameOrAddress string) (*store.Wallet, error) {
	wallets, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if common.IsHexAddress(nameOrAddress) {
		return wallets.GetByAddress(nameOrAddress)
	}
	return wallets.GetByName(nameOrAddress)
}

// unlock loads and decrypts the named wallet. Callers must Zero the key.
func (a *app) unlock(nameOrAddress string) (*key.PrivateKey, error) {
	w, err := a.lookup(nameOrAddress)
	if err != nil {
		return nil, err
	}
	ks, err := w.Keystore()
	if err != nil {
		return nil, describe(err)
	}

	password, err := a.secrets.ReadSecret(fmt.Sprintf("Password for %s", w.Name))
	if err != nil {
		return nil, err
	}
	k, err := keystore.DecryptKeystore(ks, password)
	if err != nil {
		return nil, describe(err)
	}
	return k, nil
}

// newPassword asks for a password twice.
func (a *app) newPassword() (string, error) {
	password, err := a.secrets.ReadSecret("New password")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	confirm, err := a.secrets.ReadSecret("Confirm password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// save encrypts k under a new password and stores it as name.
func (a *app) save(name string, k *key.PrivateKey) (*store.Wallet, error) {
	wallets, err := a.openStore()
	if err != nil {
		return nil, err
	}
	password, err := a.newPassword()
	if err != nil {
		return nil, err
	}
	ks, err := keystore.Encrypt(k, password, a.params)
	if err != nil {
		return nil, err
	}
	return wallets.Save(name, ks)
}

// describe prefixes classified wallet errors with their kind.
func describe(err error) error {
	kind := wallet.KindOf(err)
	if kind == wallet.KindUnknown {
		return err
	}
	return fmt.Errorf("%s: %w", kind, err)
}
