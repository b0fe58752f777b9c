package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/scrogson/walle/pkg/keystore"
)

var (
	ErrAlreadyExists = errors.New("wallet already exists")
	ErrNotFound      = errors.New("wallet not found")
)

// Wallet is a stored keystore. Only the encrypted document is kept.
type Wallet struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"column:name;type:varchar(64);uniqueIndex;not null"`
	Address      string    `gorm:"column:address;type:varchar(42);uniqueIndex;not null"`
	KeystoreJSON string    `gorm:"column:keystore;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// Keystore decodes the stored document.
func (w *Wallet) Keystore() (*keystore.Keystore, error) {
	return keystore.Parse([]byte(w.KeystoreJSON))
}

// KeystoreStore is the wallet repository.
type KeystoreStore struct {
	db *gorm.DB
}

func NewKeystoreStore(db *gorm.DB) *KeystoreStore {
	return &KeystoreStore{db: db}
}

// Save stores ks under name. The keystore must carry its address.
func (s *KeystoreStore) Save(name string, ks *keystore.Keystore) (*Wallet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("wallet name cannot be empty")
	}
	if ks == nil || !common.IsHexAddress(ks.Address) {
		return nil, errors.New("keystore must include a valid address")
	}

	data, err := ks.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode keystore: %w", err)
	}

	wallet := &Wallet{
		Name:         name,
		Address:      common.HexToAddress(ks.Address).Hex(),
		KeystoreJSON: string(data),
		CreatedAt:    time.Now().UTC(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Wallet{}).
			Where("name = ? OR address = ?", wallet.Name, wallet.Address).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyExists
		}
		return tx.Create(wallet).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetByAddress accepts the address in any case, with or without 0x.
func (s *KeystoreStore) GetByAddress(address string) (*Wallet, error) {
	if !common.IsHexAddress(address) {
		return nil, ErrNotFound
	}
	return s.first("address = ?", common.HexToAddress(address).Hex())
}

func (s *KeystoreStore) GetByName(name string) (*Wallet, error) {
	return s.first("name = ?", strings.TrimSpace(name))
}

// List returns all wallets, oldest first.
func (s *KeystoreStore) List() ([]Wallet, error) {
	var wallets []Wallet
	if err := s.db.Order("created_at ASC, id ASC").Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// Delete removes the wallet stored under address.
func (s *KeystoreStore) Delete(address string) error {
	if !common.IsHexAddress(address) {
		return ErrNotFound
	}

	res := s.db.Where("address = ?", common.HexToAddress(address).Hex()).Delete(&Wallet{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *KeystoreStore) first(query string, args ...any) (*Wallet, error) {
	var wallet Wallet
	if err := s.db.Where(query, args...).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve wallet: %w", err)
	}
	return &wallet, nil
}
