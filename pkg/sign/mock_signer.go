package sign

import "fmt"

var _ Signer = (*MockSigner)(nil)

// MockSigner produces predictable, non-cryptographic signatures for transport tests.
type MockSigner struct {
	publicKey PublicKey
}

// NewMockSigner creates a MockSigner whose address is id.
func NewMockSigner(id string) *MockSigner {
	return &MockSigner{publicKey: NewMockPublicKey(id)}
}

// Sign returns data followed by "-signed-by-<id>".
func (m *MockSigner) Sign(data []byte) (Signature, error) {
	sig := make([]byte, 0, len(data)+32)
	sig = append(sig, data...)
	sig = append(sig, fmt.Sprintf("-signed-by-%s", m.publicKey.Address())...)
	return Signature(sig), nil
}

func (m *MockSigner) PublicKey() PublicKey {
	return m.publicKey
}

var _ PublicKey = (*MockPublicKey)(nil)

// MockPublicKey uses its id as both key bytes and address.
type MockPublicKey struct {
	id string
}

func NewMockPublicKey(id string) *MockPublicKey {
	return &MockPublicKey{id: id}
}

func (m *MockPublicKey) Address() Address {
	return NewMockAddress(m.id)
}

func (m *MockPublicKey) Bytes() []byte {
	return []byte(m.id)
}

var _ Address = (*MockAddress)(nil)

// MockAddress is a plain string address.
type MockAddress struct {
	id string
}

func NewMockAddress(id string) *MockAddress {
	return &MockAddress{id: id}
}

func (m *MockAddress) String() string {
	return m.id
}

func (m *MockAddress) Equals(other Address) bool {
	return m.id == other.String()
}
