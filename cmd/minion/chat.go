package main

import (
	"os"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const maxWidth = 100

var chatCmd = &cobra.Command{
	Use:   "chat <app>",
	Short: "Chat with an app interactively",
	Long: `Starts an interactive conversation with <app>. Answers are rendered as
markdown and tool calls are shown as dimmed lines. Type "exit" to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		user, _ := cmd.Flags().GetString("user")
		session, _ := cmd.Flags().GetString("session")
		plain, _ := cmd.Flags().GetBool("plain")
		quiet, _ := cmd.Flags().GetBool("quiet")

		interactive := !plain && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		width := 0
		if interactive {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				width = min(w, maxWidth)
			}
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.Chat(sigCtx, rt, cli.ChatOptions{
			App:       args[0],
			UserID:    user,
			SessionID: session,
			Input:     os.Stdin,
			Output:    os.Stdout,
			Terminal:  interactive,
			Width:     width,
			Quiet:     quiet,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("user", "local", "User id of the session")
	chatCmd.Flags().String("session", "default", "Session id")
	chatCmd.Flags().Bool("plain", false, "Disable colors, banner and markdown rendering")
	chatCmd.Flags().BoolP("quiet", "q", false, "Hide tool and delegation lines")
}
