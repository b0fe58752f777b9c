package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// shell runs wallectl commands read from an interactive prompt. Each line
// gets a fresh command tree so flags never leak between lines.
type shell struct {
	app *app
	out io.Writer
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive wallectl prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := &shell{app: a, out: cmd.OutOrStdout()}

			fd := int(os.Stdin.Fd())
			initialState, _ := term.GetState(fd)
			defer func() {
				if initialState != nil {
					term.Restore(fd, initialState)
				}
			}()

			fmt.Fprintln(sh.out, "wallectl shell. Type 'help' for commands and 'exit' to quit.")
			p := prompt.New(sh.Execute, sh.Complete, sh.options()...)
			p.Run()
			return nil
		},
	}
}

func (sh *shell) options() []prompt.Option {
	return []prompt.Option{
		prompt.OptionTitle("wallectl"),
		prompt.OptionPrefix("walle> "),
		prompt.OptionPrefixTextColor(prompt.Yellow),
		prompt.OptionPreviewSuggestionTextColor(prompt.Cyan),
		prompt.OptionSuggestionTextColor(prompt.White),
		prompt.OptionSuggestionBGColor(prompt.DarkBlue),
		prompt.OptionDescriptionTextColor(prompt.Black),
		prompt.OptionDescriptionBGColor(prompt.Yellow),
		prompt.OptionSelectedSuggestionTextColor(prompt.Black),
		prompt.OptionSelectedSuggestionBGColor(prompt.Yellow),
		prompt.OptionSelectedDescriptionTextColor(prompt.White),
		prompt.OptionSelectedDescriptionBGColor(prompt.DarkBlue),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn:  func(*prompt.Buffer) {},
		}),
	}
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true
	}
	return false
}

// Execute runs one prompt line.
func (sh *shell) Execute(line string) {
	args, err := splitArgs(line)
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %s\n", err)
		return
	}
	if len(args) == 0 || isExit(line) {
		return
	}
	if args[0] == "shell" {
		fmt.Fprintln(sh.out, "Already in the shell.")
		return
	}

	root := newRootCmd(sh.app)
	root.SetOut(sh.out)
	root.SetErr(sh.out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(sh.out, "Error: %s\n", err)
	}
}

// Complete suggests subcommands from the command tree and, for commands that
// take a wallet, stored wallet names.
func (sh *shell) Complete(d prompt.Document) []prompt.Suggest {
	return prompt.FilterHasPrefix(sh.complete(d.TextBeforeCursor()), d.GetWordBeforeCursor(), true)
}

func (sh *shell) complete(text string) []prompt.Suggest {
	words := strings.Split(text, " ")
	if len(words) == 0 {
		return nil
	}
	completed := words[:len(words)-1]

	cmd := newRootCmd(sh.app)
	for _, w := range completed {
		next := findSubcommand(cmd, w)
		if next == nil {
			break
		}
		cmd = next
	}

	var suggestions []prompt.Suggest
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		suggestions = append(suggestions, prompt.Suggest{Text: sub.Name(), Description: sub.Short})
	}
	if len(suggestions) > 0 {
		return suggestions
	}

	if takesWallet(cmd) && len(completed) == depth(cmd) {
		return sh.walletSuggestions()
	}
	return nil
}

func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return sub
		}
	}
	return nil
}

// takesWallet reports whether the first argument of cmd names a stored wallet.
func takesWallet(cmd *cobra.Command) bool {
	return cmd.Annotations[walletArg] == "true"
}

func depth(cmd *cobra.Command) int {
	n := 0
	for c := cmd; c.HasParent(); c = c.Parent() {
		n++
	}
	return n
}

func (sh *shell) walletSuggestions() []prompt.Suggest {
	wallets, err := sh.app.openStore()
	if err != nil {
		return nil
	}
	list, err := wallets.List()
	if err != nil {
		return nil
	}

	suggestions := make([]prompt.Suggest, 0, len(list))
	for _, w := range list {
		suggestions = append(suggestions, prompt.Suggest{Text: w.Name, Description: w.Address})
	}
	return suggestions
}

var errUnterminatedQuote = errors.New("unterminated quote")

// splitArgs splits a prompt line on whitespace, honouring single and double
// quotes and backslash escapes outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
