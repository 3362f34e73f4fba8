package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	Version = "0.3.0"
)

var rootCmd = &cobra.Command{
	Use:   "seedit",
	Short: "Distill captured PostgreSQL queries into a seed dataset",
	Long: `
seedit replays query traffic captured from a live application and distills
it into a minimal, referentially complete seed dataset.

It parses each captured SELECT, attributes result columns back to their
source tables, reconstructs rows hidden behind aggregates and CASE
expressions, enriches partial rows from the live database and fetches
every transitively referenced parent row, then emits the whole set in
foreign-key-safe insertion order.`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env")
		godotenv.Load(".env.local")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("json")
		viper.SetConfigName("seedit.config")
	}

	viper.AutomaticEnv()

	viper.ReadInConfig()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./seedit.config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print per-query attribution detail")
}
