package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/nao1215/treewalk/internal/checkpoint"
	"github.com/nao1215/treewalk/internal/config"
	"github.com/nao1215/treewalk/internal/model"
	"github.com/spf13/cobra"
)

// NewCheckpointCmd creates the checkpoint command and its subcommands.
func NewCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear the resume checkpoint",
		Long: `Checkpoint works with the visit log a walk resumes from.

The log lives in the output directory as ` + checkpoint.FileName + `.
'show' prints where the next walk would resume; 'clear' discards the log so
the next walk starts from the top of the tree.`,
	}

	cmd.PersistentFlags().StringP("output-dir", "o", "",
		"Output directory holding the checkpoint (default: from config or XDG data dir)")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Path to configuration file (default: .treewalk in current or home directory)")

	cmd.AddCommand(newCheckpointShowCmd())
	cmd.AddCommand(newCheckpointClearCmd())
	return cmd
}

func newCheckpointShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resume point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			return showCheckpoint(cmd.OutOrStdout(), dir)
		},
	}
}

func newCheckpointClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the checkpoint so the next walk starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			return clearCheckpoint(cmd.OutOrStdout(), dir)
		},
	}
}

// checkpointDir resolves the output directory: the flag first, then the
// config file, then the default.
func checkpointDir(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return "", err
	}
	if dir != "" {
		return dir, nil
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path := config.FindConfigFile(configPath); path != "" {
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		if f.Output.Dir != "" {
			return f.Output.Dir, nil
		}
	} else if configPath != "" {
		return "", fmt.Errorf("configuration file not found: %s", configPath)
	}
	return config.DefaultOutputDir(), nil
}

// showCheckpoint prints the checkpoint location, its size and the last visit.
func showCheckpoint(out io.Writer, dir string) error {
	path := filepath.Join(dir, checkpoint.FileName)
	records, err := checkpoint.ReadFile(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Checkpoint: %s\n", path)
	if len(records) == 0 {
		fmt.Fprintln(out, "No visits recorded. The next walk starts from the top of the tree.")
		return nil
	}

	last := records[len(records)-1]
	fmt.Fprintf(out, "Visits:     %d\n", len(records))
	fmt.Fprintln(out, "\nResume point:")
	fmt.Fprintf(out, "  Path:     %s\n", last.Path)
	fmt.Fprintf(out, "  Name:     %s\n", last.NodeName)
	if last.URL != "" {
		fmt.Fprintf(out, "  URL:      %s\n", last.URL)
	}
	fmt.Fprintf(out, "  Visited:  %s\n", last.VisitedAt.Format(model.TimestampLayout))
	return nil
}

// clearCheckpoint truncates the checkpoint back to its header.
func clearCheckpoint(out io.Writer, dir string) error {
	store, err := checkpoint.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleared checkpoint: %s\n", store.Path())
	return nil
}
