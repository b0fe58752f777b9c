package main

import (
	"bytes"
	"crypto/rand"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrogson/walle/pkg/key"
	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/mnemonic"
	"github.com/scrogson/walle/pkg/rpc"
	"github.com/scrogson/walle/pkg/sign"
	"github.com/scrogson/walle/pkg/store"
	"github.com/scrogson/walle/pkg/wallet"
)

const (
	password       = "hunter22"
	hardhatKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatPhrase  = "test test test test test test test test test test test junk"
)

const typedData = `{
	"types": {
		"EIP712Domain": [{"name": "name", "type": "string"}, {"name": "chainId", "type": "uint256"}],
		"Greeting": [{"name": "text", "type": "string"}]
	},
	"primaryType": "Greeting",
	"domain": {"name": "wallectl", "chainId": 1},
	"message": {"text": "gm"}
}`

var errNoMoreSecrets = errors.New("no more scripted secrets")

// scriptedSecrets answers prompts from a queue.
type scriptedSecrets struct {
	answers []string
	prompts []string
}

func (s *scriptedSecrets) ReadSecret(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return "", errNoMoreSecrets
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

type testApp struct {
	*app
	secrets *scriptedSecrets
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	secrets := &scriptedSecrets{}
	a := &app{
		configDir: t.TempDir(),
		params:    keystore.Params{N: 1 << 10, R: 8, P: 1},
		secrets:   secrets,
		logger:    log.NewNoopLogger(),
	}
	t.Cleanup(a.close)
	return &testApp{app: a, secrets: secrets}
}

// run executes one command line, answering prompts with secrets in order.
func (ta *testApp) run(stdin string, secrets []string, args ...string) (string, error) {
	ta.secrets.answers = secrets

	var out bytes.Buffer
	root := newRootCmd(ta.app)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (ta *testApp) importHardhat(t *testing.T) {
	t.Helper()
	out, err := ta.run("", []string{hardhatKey, password, password}, "import", "key", "hardhat")
	require.NoError(t, err)
	require.Equal(t, "Wallet hardhat imported: "+hardhatAddress+"\n", out)
}

func TestImportKeySignRecoverVerify(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	ta.importHardhat(t)
	assert.Equal(t, []string{"Private key", "New password", "Confirm password"}, ta.secrets.prompts)

	out, err := ta.run("", nil, "address", "hardhat")
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress+"\n", out)

	out, err = ta.run("", []string{password}, "sign", "hardhat", "hello world")
	require.NoError(t, err)
	sig := strings.TrimSpace(out)

	k, err := key.FromHex(hardhatKey)
	require.NoError(t, err)
	want, err := wallet.SignMessage(k, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, want, sig)

	// Addresses work wherever names do.
	out, err = ta.run("", []string{password}, "sign", strings.ToLower(hardhatAddress), "68656c6c6f20776f726c64", "--hex")
	require.NoError(t, err)
	assert.Equal(t, sig, strings.TrimSpace(out))

	out, err = ta.run("", nil, "recover", "hello world", sig)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress+"\n", out)

	out, err = ta.run("", nil, "verify", "hello world", sig, hardhatAddress)
	require.NoError(t, err)
	assert.Equal(t, "Signature is valid.\n", out)

	_, err = ta.run("", nil, "verify", "goodbye", sig, hardhatAddress)
	assert.ErrorIs(t, err, errSignatureMismatch)
}

func TestSignTypedData(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	ta.importHardhat(t)

	out, err := ta.run(typedData, []string{password}, "sign-typed", "hardhat", "-")
	require.NoError(t, err)
	sig := strings.TrimSpace(out)

	k, err := key.FromHex(hardhatKey)
	require.NoError(t, err)
	want, err := wallet.SignTypedData(k, []byte(typedData))
	require.NoError(t, err)
	assert.Equal(t, want, sig)

	file := filepath.Join(t.TempDir(), "typed.json")
	require.NoError(t, os.WriteFile(file, []byte(typedData), 0o600))

	out, err = ta.run("", nil, "recover", "--typed", file, sig)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress+"\n", out)

	_, err = ta.run("", nil, "verify", "--typed", file, sig, hardhatAddress)
	require.NoError(t, err)
}

func TestNewWallet(t *testing.T) {
	t.Parallel()

	t.Run("random key", func(t *testing.T) {
		t.Parallel()
		ta := newTestApp(t)

		out, err := ta.run("", []string{password, password}, "new", "main")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "Wallet main created: 0x"), out)

		w, err := ta.lookup("main")
		require.NoError(t, err)
		assert.Contains(t, out, w.Address)
	})

	t.Run("mnemonic", func(t *testing.T) {
		t.Parallel()
		ta := newTestApp(t)

		out, err := ta.run("", []string{password, password}, "new", "seeded", "--mnemonic", "--words", "24")
		require.NoError(t, err)

		var phrase string
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(line, "  ") {
				phrase = strings.TrimSpace(line)
			}
		}
		require.Len(t, strings.Fields(phrase), 24)
		require.NoError(t, mnemonic.Validate(phrase))

		k, err := mnemonic.FromPhrase(phrase, "", "")
		require.NoError(t, err)
		assert.Contains(t, out, "Wallet seeded created: "+k.Checksum())
	})

	t.Run("invalid word count", func(t *testing.T) {
		t.Parallel()
		ta := newTestApp(t)

		_, err := ta.run("", nil, "new", "bad", "--mnemonic", "--words", "13")
		require.EqualError(t, err, "invalid word count 13, use 12, 15, 18, 21 or 24")
	})

	t.Run("password mismatch", func(t *testing.T) {
		t.Parallel()
		ta := newTestApp(t)

		_, err := ta.run("", []string{password, "other"}, "new", "main")
		require.EqualError(t, err, "passwords do not match")

		out, err := ta.run("", nil, "list")
		require.NoError(t, err)
		assert.Equal(t, "No wallets found.\n", out)
	})
}

func TestImportMnemonicAndKeystore(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)

	out, err := ta.run("", []string{hardhatPhrase, password, password}, "import", "mnemonic", "second", "--path", mnemonic.AccountPath(1))
	require.NoError(t, err)
	assert.Equal(t, "Wallet second imported: 0x70997970C51812dc3A010C7d01b50e0d17dc79C8\n", out)

	other, err := key.Generate(rand.Reader)
	require.NoError(t, err)
	data, err := keystore.EncryptJSON(other, "file-password", keystore.Params{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "keystore.json")
	require.NoError(t, os.WriteFile(file, data, 0o600))

	_, err = ta.run("", []string{"wrong"}, "import", "keystore", "bad", file)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "InvalidPassword: "), err.Error())

	out, err = ta.run("", []string{"file-password"}, "import", "keystore", "from-file", file)
	require.NoError(t, err)
	assert.Equal(t, "Wallet from-file imported: "+other.Checksum()+"\n", out)

	out, err = ta.run("", nil, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "from-file")
	assert.Contains(t, out, other.Checksum())

	exported := filepath.Join(t.TempDir(), "exported.json")
	_, err = ta.run("", nil, "export", "keystore", "from-file", "-o", exported)
	require.NoError(t, err)
	exportedData, err := os.ReadFile(exported)
	require.NoError(t, err)
	k, err := keystore.Decrypt(exportedData, "file-password")
	require.NoError(t, err)
	assert.True(t, k.Equal(other))

	out, err = ta.run("", []string{"file-password"}, "export", "key", "from-file")
	require.NoError(t, err)
	assert.Equal(t, other.Hex()+"\n", out)
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	ta.importHardhat(t)

	tcs := []struct {
		name       string
		stdin      string
		secrets    []string
		args       []string
		wantPrefix string
		wantIs     error
	}{
		{
			name:       "wrong password",
			secrets:    []string{"wrong"},
			args:       []string{"sign", "hardhat", "hi"},
			wantPrefix: "InvalidPassword: ",
		},
		{
			name:       "invalid private key",
			secrets:    []string{"0x1234"},
			args:       []string{"import", "key", "bad"},
			wantPrefix: "InvalidKey: ",
		},
		{
			name:       "invalid mnemonic",
			secrets:    []string{"abandon abandon abandon"},
			args:       []string{"import", "mnemonic", "bad"},
			wantPrefix: "InvalidMnemonic: ",
		},
		{
			name:    "duplicate wallet",
			secrets: []string{hardhatKey, password, password},
			args:    []string{"import", "key", "again"},
			wantIs:  store.ErrAlreadyExists,
		},
		{
			name:   "unknown wallet",
			args:   []string{"address", "nobody"},
			wantIs: store.ErrNotFound,
		},
		{
			name:       "bad signature",
			args:       []string{"recover", "hi", "0x00"},
			wantPrefix: "InvalidSignature: ",
		},
		{
			name:       "typed data that is not JSON",
			stdin:      "{not json",
			args:       []string{"recover", "--typed", "-", "0x00"},
			wantPrefix: "MalformedJSON: ",
		},
		{
			name:       "bad hex message",
			args:       []string{"recover", "--hex", "0xzz", "0x00"},
			wantPrefix: "invalid hex message: ",
		},
		{
			name:       "unknown kdf preset",
			args:       []string{"list", "--kdf", "fast"},
			wantPrefix: "unknown kdf preset",
		},
		{
			name:   "secrets exhausted",
			args:   []string{"sign", "hardhat", "hi"},
			wantIs: errNoMoreSecrets,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ta.run(tc.stdin, tc.secrets, tc.args...)
			require.Error(t, err)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
			if tc.wantPrefix != "" {
				assert.True(t, strings.HasPrefix(err.Error(), tc.wantPrefix), "got %q", err.Error())
			}
		})
	}
}

func TestDeleteWallet(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	ta.importHardhat(t)

	out, err := ta.run("", nil, "delete", "hardhat")
	require.NoError(t, err)
	assert.Equal(t, "Wallet hardhat deleted: "+hardhatAddress+"\n", out)

	_, err = ta.run("", nil, "delete", "hardhat")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKDFPreset(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)

	_, err := ta.run("", nil, "list", "--kdf", "light")
	require.NoError(t, err)
	assert.Equal(t, keystore.LightParams, ta.params)
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "   ", want: nil},
		{line: "list", want: []string{"list"}},
		{line: "sign  main   hello", want: []string{"sign", "main", "hello"}},
		{line: `sign main "hello world"`, want: []string{"sign", "main", "hello world"}},
		{line: `sign main 'it "works"'`, want: []string{"sign", "main", `it "works"`}},
		{line: `sign main hello\ world`, want: []string{"sign", "main", "hello world"}},
		{line: `sign main ""`, want: []string{"sign", "main", ""}},
		{line: `sign main "open`, wantErr: true},
		{line: `sign main trailing\`, wantErr: true},
	}

	for _, tc := range tcs {
		t.Run(tc.line, func(t *testing.T) {
			got, err := splitArgs(tc.line)
			if tc.wantErr {
				require.ErrorIs(t, err, errUnterminatedQuote)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func suggestionTexts(suggestions []prompt.Suggest) []string {
	texts := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		texts = append(texts, s.Text)
	}
	return texts
}

func TestShell(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	ta.importHardhat(t)

	var out bytes.Buffer
	sh := &shell{app: ta.app, out: &out}

	t.Run("complete commands", func(t *testing.T) {
		texts := suggestionTexts(sh.complete(""))
		assert.Contains(t, texts, "sign")
		assert.Contains(t, texts, "import")
		assert.NotContains(t, texts, "help")

		assert.ElementsMatch(t, []string{"key", "keystore"}, suggestionTexts(sh.complete("export ")))
		assert.ElementsMatch(t, []string{"key", "mnemonic", "keystore"}, suggestionTexts(sh.complete("import ")))
	})

	t.Run("complete wallets", func(t *testing.T) {
		assert.Equal(t, []string{"hardhat"}, suggestionTexts(sh.complete("sign ")))
		assert.Equal(t, []string{"hardhat"}, suggestionTexts(sh.complete("export key ")))
		assert.Empty(t, sh.complete("sign hardhat "))
		assert.Empty(t, sh.complete("new "))
	})

	t.Run("execute", func(t *testing.T) {
		out.Reset()
		sh.Execute("address hardhat")
		assert.Equal(t, hardhatAddress+"\n", out.String())

		out.Reset()
		sh.Execute(`address "no body"`)
		assert.Equal(t, "Error: "+store.ErrNotFound.Error()+"\n", out.String())

		out.Reset()
		sh.Execute("shell")
		assert.Equal(t, "Already in the shell.\n", out.String())

		out.Reset()
		sh.Execute("exit")
		assert.Empty(t, out.String())
	})
}

func TestRemote(t *testing.T) {
	t.Parallel()

	nodeKey, err := key.Generate(rand.Reader)
	require.NoError(t, err)
	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer: sign.NewEthereumSigner(nodeKey),
		Logger: log.NewNoopLogger(),
	})
	require.NoError(t, err)
	node.Handle(rpc.ListWalletsMethod.String(), func(c *rpc.Context) {
		params, err := rpc.NewParams(rpc.ListWalletsResponse{Wallets: []rpc.WalletInfo{
			{Name: "remote-main", Address: hardhatAddress, CreatedAt: 1700000000},
		}})
		if err != nil {
			c.Fail(err, "")
			return
		}
		c.Succeed(c.Request.Req.Method, params)
	})
	node.Handle(rpc.SignMessageMethod.String(), func(c *rpc.Context) {
		var req rpc.SignMessageRequest
		if err := c.Request.Req.Params.Translate(&req); err != nil {
			c.Fail(err, "")
			return
		}
		if req.Password != password {
			c.Fail(rpc.Errorf("InvalidPassword: wrong password"), "")
			return
		}
		params, err := rpc.NewParams(rpc.SignatureResponse{Address: req.Address, Signature: "0xsig"})
		if err != nil {
			c.Fail(err, "")
			return
		}
		c.Succeed(c.Request.Req.Method, params)
	})

	server := httptest.NewServer(node)
	t.Cleanup(func() {
		node.Close()
		server.Close()
	})
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	ta := newTestApp(t)

	out, err := ta.run("", nil, "remote", "ping", "--url", url, "--node-address", nodeKey.Checksum())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pong in "), out)
	assert.Contains(t, out, "signed by "+nodeKey.Checksum())

	other, err := key.Generate(rand.Reader)
	require.NoError(t, err)
	_, err = ta.run("", nil, "remote", "ping", "--url", url, "--node-address", other.Checksum())
	assert.ErrorIs(t, err, rpc.ErrUntrustedResponse)

	out, err = ta.run("", nil, "remote", "list", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "remote-main")
	assert.Contains(t, out, hardhatAddress)

	out, err = ta.run("", []string{password}, "remote", "sign", hardhatAddress, "hi", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, `"signature": "0xsig"`)

	_, err = ta.run("", []string{"wrong"}, "remote", "sign", hardhatAddress, "hi", "--url", url)
	require.EqualError(t, err, "InvalidPassword: wrong password")

	_, err = ta.run("", nil, "remote", "list")
	require.Error(t, err)
}
