package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andrew/eve-companion/pkg/models"
)

var settingsFormat string

// settingsView is what `eve settings show` prints
type settingsView struct {
	Language      models.Language           `json:"language" yaml:"language"`
	ImageEndpoint string                    `json:"imageEndpoint" yaml:"imageEndpoint"`
	Generation    models.GenerationSettings `json:"generation" yaml:"generation"`
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change generation settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		snap := a.svc.Snapshot()
		view := settingsView{
			Language:      snap.Language,
			ImageEndpoint: snap.ImageEndpoint,
			Generation:    snap.Settings,
		}

		var out []byte
		switch settingsFormat {
		case "json":
			out, err = json.MarshalIndent(view, "", "  ")
			out = append(out, '\n')
		case "yaml", "":
			out, err = yaml.Marshal(view)
		default:
			return fmt.Errorf("unknown format %q (use yaml or json)", settingsFormat)
		}
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one generation setting",
	Long: `Changes one generation setting by its JSON name, for example:

  eve settings set temperature 0.8
  eve settings set localModelName llama3.1
  eve settings set aiImageGeneration false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.svc.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", boldCyan(args[0]), args[1])
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default generation settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.svc.ResetSettings(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings reset to defaults.")
		return nil
	},
}

var settingsImageEndpointCmd = &cobra.Command{
	Use:   "image-endpoint [url]",
	Short: "Set the Gradio image app URL; no argument turns pictures off",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		endpoint := ""
		if len(args) == 1 {
			endpoint = args[0]
		}
		if err := a.svc.SetImageEndpoint(cmd.Context(), endpoint); err != nil {
			return err
		}
		printNotices(cmd.OutOrStdout(), a.svc.DrainNotices())
		return nil
	},
}

var settingsLanguageCmd = &cobra.Command{
	Use:       "language <english|manglish>",
	Short:     "Set the reply language",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.LanguageEnglish), string(models.LanguageManglish)},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		lang := models.ParseLanguage(args[0])
		if string(lang) != args[0] {
			return fmt.Errorf("unknown language %q", args[0])
		}
		if err := a.svc.SetLanguage(cmd.Context(), lang); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Language set to %s.\n", lang)
		return nil
	},
}

func init() {
	settingsShowCmd.Flags().StringVarP(&settingsFormat, "output", "o", "yaml", "Output format: yaml or json")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsResetCmd, settingsImageEndpointCmd, settingsLanguageCmd)
}
