package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/radiocap/internal/config"
)

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid bool          `json:"valid"`
	Path  string        `json:"path"`
	Slots []SlotSummary `json:"slots,omitempty"`
}

// SlotSummary describes one configured slot.
type SlotSummary struct {
	Index    int      `json:"index"`
	Families []string `json:"families"`
	ModemID  string   `json:"modem_id"`
	SIM      bool     `json:"sim"`
	Probe    bool     `json:"probe,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a device configuration",
		Long: `Load a device configuration (.yaml, .toml, .json or .cue) and check it
against the embedded CUE schema without starting anything.

Exit codes:
  0 - Configuration is valid
  1 - Configuration is invalid
  2 - File not found`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return out.Fail(ExitCommandError, ErrCodeConfig, fmt.Sprintf("config not found: %s", path), nil, nil)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeConfig, err.Error(), ValidationResult{Path: path}, nil)
	}

	res := ValidationResult{Valid: true, Path: path}
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s: %d slot(s)", path, len(cfg.Slots))
	for _, s := range cfg.Slots {
		present, _, _ := s.SIMState()
		sum := SlotSummary{Index: s.Index, Families: s.Families, ModemID: s.ModemID, SIM: present, Probe: s.Probe}
		res.Slots = append(res.Slots, sum)
		if opts.Verbose {
			fmt.Fprintf(&b, "\n  slot %d: %s modem=%q sim=%t", s.Index, strings.Join(s.Families, ","), s.ModemID, present)
		}
	}
	return out.Success(res, b.String())
}
