package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentinelops/sentinel-go/cmd/persistd"
	"github.com/sentinelops/sentinel-go/cmd/serve"
	"github.com/sentinelops/sentinel-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Sentinel surveillance dashboard backend",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		persistd.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Re-unmarshal so command line flags take precedence over the
		// config file and environment.
		return viper.Unmarshal(settings)
	}

	return rootCmd
}

// setupFlags defines the global flags and binds them into viper.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().Bool("debug", settings.Debug, "Enable debug output")
	cmd.PersistentFlags().String("host", settings.Server.Host, "Host to listen on")
	cmd.PersistentFlags().Int("port", settings.Server.Port, "Port to listen on")
	cmd.PersistentFlags().String("persistence-url", settings.Persistence.BaseURL, "Base URL of the persistence service")

	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("server.host", cmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", cmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("persistence.baseurl", cmd.PersistentFlags().Lookup("persistence-url"))
}
