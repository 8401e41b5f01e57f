package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage long-term memory",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the long-term memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		mem := a.svc.Snapshot().LongTermMemory
		if strings.TrimSpace(mem) == "" {
			fmt.Fprintln(cmd.OutOrStdout(), faint("No memories consolidated yet."))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), mem)
		return nil
	},
}

var memoryConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Fold the conversation into long-term memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		err = a.svc.Consolidate(cmd.Context())
		printNotices(out, a.svc.DrainNotices())
		printHint(out, err)
		return err
	},
}

var memorySetCmd = &cobra.Command{
	Use:   "set <text>",
	Short: "Replace the long-term memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.SetMemory(cmd.Context(), strings.Join(args, " ")); err != nil {
			return err
		}
		printNotices(cmd.OutOrStdout(), a.svc.DrainNotices())
		return nil
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the conversation and the memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.svc.ClearHistory(cmd.Context())
		printNotices(cmd.OutOrStdout(), a.svc.DrainNotices())
		return err
	},
}

func init() {
	memoryCmd.AddCommand(memoryShowCmd, memoryConsolidateCmd, memorySetCmd, memoryClearCmd)
}
