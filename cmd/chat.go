package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"backend-go-assistant/agent"
	"backend-go-assistant/transport"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long:  `Reads one message per line and streams the reply. Type "exit" or "quit" to leave.`,
	RunE:  runChat,
}

var (
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusStyle    = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func runChat(cmd *cobra.Command, _ []string) error {
	// Logs go to stderr so they do not interleave with the reply stream.
	cfg, log, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	conv, err := app.NewOrchestrator(ctx)
	if err != nil {
		return err
	}
	return chatLoop(ctx, conv, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop runs one turn per input line until EOF, exit/quit, or ctx is done.
// A failed turn is printed and the loop continues.
func chatLoop(ctx context.Context, conv transport.Conversation, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, statusStyle.Render("Type exit or quit to leave."))

	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		fmt.Fprint(out, assistantStyle.Render("assistant> "))
		for ev, err := range conv.HandleUserInput(ctx, text) {
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
				break
			}
			switch e := ev.(type) {
			case agent.StateEvent:
				if e.State == agent.StateSearching {
					fmt.Fprint(out, statusStyle.Render("(searching the web) "))
				}
			case agent.SpeechEvent:
				if e.IsFinal {
					fmt.Fprintln(out)
				} else {
					fmt.Fprint(out, e.Text)
				}
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
