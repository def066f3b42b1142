package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relay/internal/compress"
	"relay/internal/content"
)

// NewContextCmd creates the context command.
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Inspect and compress conversation history files",
		Long: `Operate on conversation history snapshots stored as JSON turn lists.

The stats subcommand reports turn counts and the estimated token load
against the configured model's context window. The compress subcommand
summarizes the oldest portion of the history and writes the result back.`,
	}

	cmd.AddCommand(newContextStatsCmd())
	cmd.AddCommand(newContextCompressCmd())
	cmd.AddCommand(newContextCurateCmd())
	cmd.AddCommand(newContextClearCmd())

	return cmd
}

func newContextStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <history.json>",
		Short: "Show token statistics for a history file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			turns, err := readHistoryFile(args[0])
			if err != nil {
				return err
			}

			session, err := cliCtx.NewSession()
			if err != nil {
				return err
			}
			if err := session.SetHistory(turns); err != nil {
				return err
			}

			printStats(session.Stats())
			return nil
		},
	}
}

func newContextCompressCmd() *cobra.Command {
	var (
		force      bool
		threshold  float64
		preserve   float64
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "compress <history.json>",
		Short: "Compress the oldest portion of a history file",
		Example: `  # Compress when over the configured threshold
  relay context compress history.json

  # Compress unconditionally, keeping the last 30%
  relay context compress --force history.json

  # Write to a different file
  relay context compress -o compact.json history.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			turns, err := readHistoryFile(args[0])
			if err != nil {
				return err
			}

			session, err := cliCtx.NewSession()
			if err != nil {
				return err
			}
			if err := session.SetHistory(turns); err != nil {
				return err
			}

			if threshold == 0 {
				threshold = cliCtx.Config.Compression.Threshold
			}
			if preserve == 0 {
				preserve = cliCtx.Config.Compression.PreserveFraction
			}
			res, err := session.Compress(cmd.Context(), compress.Options{
				Force:            force,
				Threshold:        threshold,
				PreserveFraction: preserve,
			})
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Println("History is below the compression threshold; nothing done.")
				return nil
			}

			if outputPath == "" {
				outputPath = args[0]
			}
			if err := writeHistoryFile(outputPath, session.History(false)); err != nil {
				return err
			}

			fmt.Printf("Compressed %d -> %d tokens\n", res.OriginalTokenCount, res.NewTokenCount)
			fmt.Printf("Written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "compress regardless of the threshold")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "context fraction that triggers compression (0 uses config)")
	cmd.Flags().Float64Var(&preserve, "preserve", 0, "trailing history fraction kept verbatim (0 uses config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (defaults to in-place)")

	return cmd
}

func newContextCurateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "curate <history.json>",
		Short: "Print the valid, alternating projection of a history file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			turns, err := readHistoryFile(args[0])
			if err != nil {
				return err
			}

			session, err := cliCtx.NewSession()
			if err != nil {
				return err
			}
			if err := session.SetHistory(turns); err != nil {
				return err
			}

			data, err := json.MarshalIndent(session.History(true), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newContextClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <history.json>",
		Short: "Empty a history file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := readHistoryFile(args[0]); err != nil {
				return err
			}
			if err := writeHistoryFile(args[0], []content.Turn{}); err != nil {
				return err
			}
			fmt.Printf("Cleared %s\n", args[0])
			return nil
		},
	}
}

func readHistoryFile(path string) ([]content.Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	var turns []content.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	return turns, nil
}

func writeHistoryFile(path string, turns []content.Turn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
