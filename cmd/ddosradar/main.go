package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/app"
)

var (
	cfgFile string

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ddosradar",
	Short: "Near-real-time HTTP request burst detection",
	Long: `ddosradar tails a web server request log, stores every request in a
record store and classifies each active source over a sliding time window
with a pre-trained model, flagging sources whose request volume looks like
a flood.

Commands:
  monitor    run the detection loop against the request log
  dashboard  read-only terminal view over the record store
  recent     print the most recent records
  simulate   append synthetic benign and flood traffic to the log
  dataset    build a labelled training CSV from a log
  artifact   inspect or convert a classifier artifact`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ddosradar %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	flags.StringP("log", "l", "", "request log to monitor")
	flags.String("store", "", "SQLite record store path")
	flags.String("artifact", "", "classifier artifact directory or manifest")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "console or json")

	viper.BindPFlag("log.path", flags.Lookup("log"))
	viper.BindPFlag("store.path", flags.Lookup("store"))
	viper.BindPFlag("classifier.artifact", flags.Lookup("artifact"))
	viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	viper.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/ddosradar")
	}

	app.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("DDOSRADAR")
	viper.AutomaticEnv()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch viper.GetString("logging.level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if viper.GetString("logging.format") == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}
}

func loadSettings() (app.Settings, error) {
	settings, err := app.LoadSettings(viper.GetViper())
	if err != nil {
		return app.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
