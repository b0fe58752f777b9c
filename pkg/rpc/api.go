package rpc

import "encoding/json"

// Method is an RPC method name.
type Method string

const (
	// PingMethod checks liveness; the node answers with PongMethod.
	PingMethod Method = "ping"
	PongMethod Method = "pong"
	// ErrorMethod marks failed responses. The params hold {"error": "<kind>: <message>"}.
	ErrorMethod Method = "error"

	// CreateWalletMethod generates a key and stores it encrypted under name.
	CreateWalletMethod Method = "create_wallet"
	// ImportPrivateKeyMethod stores a hex private key.
	ImportPrivateKeyMethod Method = "import_private_key"
	// ImportMnemonicMethod derives a key from a BIP-39 phrase and stores it.
	ImportMnemonicMethod Method = "import_mnemonic"
	// ImportKeystoreMethod decrypts a v3 keystore to validate it, then stores it.
	ImportKeystoreMethod Method = "import_keystore"
	ListWalletsMethod    Method = "list_wallets"
	GetKeystoreMethod    Method = "get_keystore"
	// ExportPrivateKeyMethod is only served when key export is enabled on the node.
	ExportPrivateKeyMethod Method = "export_private_key"
	DeleteWalletMethod     Method = "delete_wallet"

	SignMessageMethod      Method = "sign_message"
	SignTypedDataMethod    Method = "sign_typed_data"
	RecoverMethod          Method = "recover"
	RecoverTypedDataMethod Method = "recover_typed_data"
	VerifyMethod           Method = "verify"
)

func (m Method) String() string {
	return string(m)
}

// Message encodings accepted by sign_message, recover and verify.
const (
	EncodingUTF8 = "utf8"
	EncodingHex  = "hex"
)

// WalletInfo describes a stored wallet. Secrets are never part of it.
type WalletInfo struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	CreatedAt int64  `json:"created_at"`
}

type CreateWalletRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type ImportPrivateKeyRequest struct {
	Name       string `json:"name" validate:"required,max=64"`
	PrivateKey string `json:"private_key" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type ImportMnemonicRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Mnemonic string `json:"mnemonic" validate:"required"`
	// Path defaults to m/44'/60'/0'/0/0.
	Path       string `json:"path,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Password   string `json:"password" validate:"required"`
}

type ImportKeystoreRequest struct {
	Name     string          `json:"name" validate:"required,max=64"`
	Keystore json.RawMessage `json:"keystore" validate:"required"`
	Password string          `json:"password" validate:"required"`
}

// WalletResponse is returned by the create and import methods.
type WalletResponse struct {
	WalletInfo
}

type ListWalletsResponse struct {
	Wallets []WalletInfo `json:"wallets"`
}

type GetKeystoreRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type GetKeystoreResponse struct {
	Address  string          `json:"address"`
	Keystore json.RawMessage `json:"keystore"`
}

type ExportPrivateKeyRequest struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Password string `json:"password" validate:"required"`
}

type ExportPrivateKeyResponse struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

type DeleteWalletRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type DeleteWalletResponse struct {
	Address string `json:"address"`
}

type SignMessageRequest struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Password string `json:"password" validate:"required"`
	Message  string `json:"message"`
	Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 hex"`
}

type SignTypedDataRequest struct {
	Address   string          `json:"address" validate:"required,eth_addr"`
	Password  string          `json:"password" validate:"required"`
	TypedData json.RawMessage `json:"typed_data" validate:"required"`
}

type SignatureResponse struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type RecoverRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature" validate:"required"`
	Encoding  string `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 hex"`
}

type RecoverTypedDataRequest struct {
	TypedData json.RawMessage `json:"typed_data" validate:"required"`
	Signature string          `json:"signature" validate:"required"`
}

type RecoverResponse struct {
	Address string `json:"address"`
}

// VerifyRequest checks either a message or a typed data document, not both.
type VerifyRequest struct {
	Message   *string         `json:"message,omitempty"`
	TypedData json.RawMessage `json:"typed_data,omitempty"`
	Encoding  string          `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 hex"`
	Signature string          `json:"signature" validate:"required"`
	Address   string          `json:"address" validate:"required"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}
