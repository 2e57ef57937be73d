package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mockcarpool/carpool/internal/session"
	"github.com/mockcarpool/carpool/internal/tui"
)

// runProgram runs the bubbletea program. Tests replace it.
var runProgram = func(cmd *cobra.Command, m tea.Model) error {
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err := p.Run()
	return err
}

var tuiCmd = &cobra.Command{
	Use:   "tui [from] [to]",
	Short: "Launch the interactive route search",
	Long: `Launch an interactive screen with a start and an end field.
Suggestions appear while typing; optional arguments prefill the fields.

Controls:
  Tab/Shift+Tab - Switch field
  ↑, ↓          - Move through suggestions
  Enter         - Accept suggestion / next field / route
  Ctrl+R        - Compute the route
  Ctrl+L        - Clear both fields
  Esc           - Quit`,
	Args: cobra.MaximumNArgs(2),
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	sessions, closeFn, err := openSessions(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	sess, err := sessions.Create()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	for i, text := range args {
		if _, err := sess.SetText(cmd.Context(), session.Fields[i], text); err != nil {
			return fmt.Errorf("prefill %s: %w", session.Fields[i], err)
		}
	}

	if err := runProgram(cmd, tui.New(cmd.Context(), sess)); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
