package cli

import (
	"os"
	"path/filepath"

	"github.com/ashureev/strategic-discovery/internal/flow"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "discoveryctl-preferences.yaml"
	}
	return filepath.Join(dir, "discoveryctl", "preferences.yaml")
}

func PrefsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change saved wizard preferences",
	}
	cmd.PersistentFlags().StringVar(&path, "file", defaultPrefsPath(), "Preferences file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flow.NewFilePreferences(path).Load(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(p)
		},
	}

	var language, country, currency, firm, color, logo string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update preferences; unset flags keep their value",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := flow.NewFilePreferences(path)
			p, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			f := cmd.Flags()
			apply := func(name string, dst *string, v string) {
				if f.Changed(name) {
					*dst = v
				}
			}
			apply("language", &p.Language, language)
			apply("country", &p.CountryCode, country)
			apply("currency", &p.CurrencyCode, currency)
			apply("firm", &p.Branding.FirmName, firm)
			apply("color", &p.Branding.PrimaryColor, color)
			apply("logo", &p.Branding.LogoURL, logo)
			return store.Save(cmd.Context(), p)
		},
	}
	set.Flags().StringVar(&language, "language", "", "Report language code")
	set.Flags().StringVar(&country, "country", "", "ISO country code")
	set.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	set.Flags().StringVar(&firm, "firm", "", "Consulting firm name shown on reports")
	set.Flags().StringVar(&color, "color", "", "Brand primary color")
	set.Flags().StringVar(&logo, "logo", "", "Brand logo URL")

	cmd.AddCommand(show, set)
	return cmd
}
