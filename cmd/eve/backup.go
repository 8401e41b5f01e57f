package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrew/eve-companion/pkg/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or import the conversation as a JSON file",
}

var backupExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the conversation and memory to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := store.EncodeBackup(a.svc.Export(cmd.Context()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o600); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", args[0])
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the conversation and memory with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}
		session, err := store.DecodeBackup(data)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.Restore(cmd.Context(), session); err != nil {
			return err
		}
		printNotices(cmd.OutOrStdout(), a.svc.DrainNotices())
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupExportCmd, backupImportCmd)
}
