package main

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/mnemonic"
	"github.com/scrogson/walle/pkg/wallet"
)

var kdfPresets = map[string]keystore.Params{
	"default":  keystore.DefaultParams,
	"light":    keystore.LightParams,
	"standard": keystore.StandardParams,
}

// walletArg marks commands whose first argument names a stored wallet.
const walletArg = "wallet-arg"

func newRootCmd(a *app) *cobra.Command {
	var configDir, logLevel, kdf string

	root := &cobra.Command{
		Use:           "wallectl",
		Short:         "Manage encrypted Ethereum wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Flags only override the app when given, so settings made when the
		// shell started survive for every line.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("config-dir") && configDir != a.configDir {
				a.close()
				a.configDir = configDir
			}
			if flags.Changed("kdf") {
				params, ok := kdfPresets[kdf]
				if !ok {
					return fmt.Errorf("unknown kdf preset %q, use default, light or standard", kdf)
				}
				a.params = params
			}
			if flags.Changed("log-level") {
				a.logger = log.NewZapLogger(log.Config{Level: log.Level(logLevel), Output: "stderr"})
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "data directory (default $"+configDirEnv+" or <user config dir>/walle)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", string(log.LevelWarn), "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&kdf, "kdf", "default", "scrypt cost for new keystores: default, light or standard")

	root.AddCommand(
		newNewCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newListCmd(a),
		newAddressCmd(a),
		newDeleteCmd(a),
		newSignCmd(a),
		newSignTypedCmd(a),
		newRecoverCmd(a),
		newVerifyCmd(a),
		newRemoteCmd(a),
	)
	return root
}

func newNewCmd(a *app) *cobra.Command {
	var (
		withMnemonic bool
		words        int
		passphrase   bool
	)

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a wallet from a random key or a fresh mnemonic",
		Example: `  wallectl new main
  wallectl new savings --mnemonic --words 24`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !withMnemonic {
				k, err := wallet.GenerateWallet(rand.Reader)
				if err != nil {
					return err
				}
				defer k.Zero()

				w, err := a.save(args[0], k)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wallet %s created: %s\n", w.Name, w.Address)
				return nil
			}

			if words < 12 || words > 24 || words%3 != 0 {
				return fmt.Errorf("invalid word count %d, use 12, 15, 18, 21 or 24", words)
			}
			phrase, err := mnemonic.New(words / 3 * 32)
			if err != nil {
				return err
			}

			var seedPassphrase string
			if passphrase {
				if seedPassphrase, err = a.secrets.ReadSecret("Mnemonic passphrase"); err != nil {
					return err
				}
			}
			k, err := wallet.ImportMnemonicWithPassphrase(phrase, mnemonic.DefaultPath, seedPassphrase)
			if err != nil {
				return describe(err)
			}
			defer k.Zero()

			w, err := a.save(args[0], k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wallet %s created: %s\n", w.Name, w.Address)
			fmt.Fprintln(out, "Write down this mnemonic. It is the only way to recover the wallet:")
			fmt.Fprintf(out, "\n  %s\n\n", phrase)
			fmt.Fprintf(out, "Derivation path: %s\n", mnemonic.DefaultPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withMnemonic, "mnemonic", false, "derive the key from a new BIP-39 mnemonic")
	cmd.Flags().IntVar(&words, "words", 12, "mnemonic length in words")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "prompt for a BIP-39 passphrase")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a private key, mnemonic or keystore file",
	}

	keyCmd := &cobra.Command{
		Use:   "key <name>",
		Short: "Import a hex private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKeyHex, err := a.secrets.ReadSecret("Private key")
			if err != nil {
				return err
			}
			k, err := wallet.ImportPrivateKey(privateKeyHex)
			if err != nil {
				return describe(err)
			}
			defer k.Zero()

			w, err := a.save(args[0], k)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet %s imported: %s\n", w.Name, w.Address)
			return nil
		},
	}

	var (
		path       string
		passphrase bool
	)
	mnemonicCmd := &cobra.Command{
		Use:   "mnemonic <name>",
		Short: "Import a key derived from a BIP-39 mnemonic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phrase, err := a.secrets.ReadSecret("Mnemonic")
			if err != nil {
				return err
			}
			var seedPassphrase string
			if passphrase {
				if seedPassphrase, err = a.secrets.ReadSecret("Mnemonic passphrase"); err != nil {
					return err
				}
			}
			k, err := wallet.ImportMnemonicWithPassphrase(phrase, path, seedPassphrase)
			if err != nil {
				return describe(err)
			}
			defer k.Zero()

			w, err := a.save(args[0], k)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet %s imported: %s\n", w.Name, w.Address)
			return nil
		},
	}
	mnemonicCmd.Flags().StringVar(&path, "path", mnemonic.DefaultPath, "derivation path")
	mnemonicCmd.Flags().BoolVar(&passphrase, "passphrase", false, "prompt for a BIP-39 passphrase")

	keystoreCmd := &cobra.Command{
		Use:   "keystore <name> <file>",
		Short: "Import a v3 keystore file as is, after checking its password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			ks, err := keystore.Parse(data)
			if err != nil {
				return describe(err)
			}
			password, err := a.secrets.ReadSecret("Keystore password")
			if err != nil {
				return err
			}
			k, err := keystore.DecryptKeystore(ks, password)
			if err != nil {
				return describe(err)
			}
			defer k.Zero()

			wallets, err := a.openStore()
			if err != nil {
				return err
			}
			ks.Address = common.Bytes2Hex(k.Address().Bytes())
			w, err := wallets.Save(args[0], ks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet %s imported: %s\n", w.Name, w.Address)
			return nil
		},
	}

	cmd.AddCommand(keyCmd, mnemonicCmd, keystoreCmd)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a wallet's private key or keystore",
	}

	keyCmd := &cobra.Command{
		Use:         "key <name|address>",
		Annotations: map[string]string{walletArg: "true"},
		Short:       "Print the private key as hex",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.unlock(args[0])
			if err != nil {
				return err
			}
			defer k.Zero()

			fmt.Fprintln(cmd.OutOrStdout(), wallet.ExportPrivateKey(k))
			return nil
		},
	}

	var outFile string
	keystoreCmd := &cobra.Command{
		Use:         "keystore <name|address>",
		Annotations: map[string]string{walletArg: "true"},
		Short:       "Print the stored keystore document",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if outFile == "" {
				fmt.Fprintln(cmd.OutOrStdout(), w.KeystoreJSON)
				return nil
			}
			if err := os.WriteFile(outFile, []byte(w.KeystoreJSON), 0o600); err != nil {
				return fmt.Errorf("failed to write keystore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Keystore for %s written to %s\n", w.Address, outFile)
			return nil
		},
	}
	keystoreCmd.Flags().StringVarP(&outFile, "out", "o", "", "write to a file instead of stdout")

	cmd.AddCommand(keyCmd, keystoreCmd)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, err := a.openStore()
			if err != nil {
				return err
			}
			list, err := wallets.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No wallets found.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Address", "Created"})
			t.AppendSeparator()
			for _, w := range list {
				t.AppendRow(table.Row{w.Name, w.Address, w.CreatedAt.Local().Format(time.RFC3339)})
			}
			t.Render()
			return nil
		},
	}
}

func newAddressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "address <name>",
		Annotations: map[string]string{walletArg: "true"},
		Short:       "Print a wallet's checksummed address",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), w.Address)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "delete <name|address>",
		Annotations: map[string]string{walletArg: "true"},
		Short:       "Remove a wallet from the store",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(w.Address); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet %s deleted: %s\n", w.Name, w.Address)
			return nil
		},
	}
}

func newSignCmd(a *app) *cobra.Command {
	var hexInput bool

	cmd := &cobra.Command{
		Use:         "sign <name|address> <message>",
		Annotations: map[string]string{walletArg: "true"},
		Short:       "Sign a message with the Ethereum personal message prefix",
		Args:        cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := messageBytes(args[1], hexInput)
			if err != nil {
				return err
			}
			k, err := a.unlock(args[0])
			if err != nil {
				return err
			}
			defer k.Zero()

			sig, err := wallet.SignMessage(k, message)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hexInput, "hex", false, "treat the message as hex bytes")
	return cmd
}

func newSignTypedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "sign-typed <name|address> <file>",
		Annotations: map[string]string{walletArg: "true"},
		Short:       "Sign an EIP-712 typed data document (use - for stdin)",
		Args:        cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typedData, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			k, err := a.unlock(args[0])
			if err != nil {
				return err
			}
			defer k.Zero()

			sig, err := wallet.SignTypedData(k, typedData)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

func newRecoverCmd(a *app) *cobra.Command {
	var (
		hexInput bool
		typed    bool
	)

	cmd := &cobra.Command{
		Use:   "recover <message> <signature>",
		Short: "Print the address that signed a message",
		Long:  "Print the address that signed a message. With --typed the first argument is an EIP-712 document file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				addr string
				err  error
			)
			if typed {
				var typedData []byte
				if typedData, err = readInput(cmd.InOrStdin(), args[0]); err != nil {
					return err
				}
				addr, err = wallet.RecoverTypedData(typedData, args[1])
			} else {
				var message []byte
				if message, err = messageBytes(args[0], hexInput); err != nil {
					return err
				}
				addr, err = wallet.Recover(message, args[1])
			}
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hexInput, "hex", false, "treat the message as hex bytes")
	cmd.Flags().BoolVar(&typed, "typed", false, "the message argument is a typed data file")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		hexInput bool
		typed    bool
	)

	cmd := &cobra.Command{
		Use:   "verify <message> <signature> <address>",
		Short: "Check that a signature was made by an address",
		Long:  "Check that a signature was made by an address. Exits non-zero when it was not.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				valid bool
				err   error
			)
			if typed {
				var typedData []byte
				if typedData, err = readInput(cmd.InOrStdin(), args[0]); err != nil {
					return err
				}
				valid, err = wallet.VerifyTypedData(typedData, args[1], args[2])
			} else {
				var message []byte
				if message, err = messageBytes(args[0], hexInput); err != nil {
					return err
				}
				valid, err = wallet.Verify(message, args[1], args[2])
			}
			if err != nil {
				return describe(err)
			}
			if !valid {
				return errSignatureMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signature is valid.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&hexInput, "hex", false, "treat the message as hex bytes")
	cmd.Flags().BoolVar(&typed, "typed", false, "the message argument is a typed data file")
	return cmd
}

var errSignatureMismatch = errors.New("signature was not made by this address")

func messageBytes(message string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(message), nil
	}
	if !strings.HasPrefix(message, "0x") && !strings.HasPrefix(message, "0X") {
		message = "0x" + message
	}
	b, err := hexutil.Decode(message)
	if err != nil {
		return nil, fmt.Errorf("invalid hex message: %w", err)
	}
	return b, nil
}

// readInput reads a file, or stdin when name is "-".
func readInput(stdin io.Reader, name string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
