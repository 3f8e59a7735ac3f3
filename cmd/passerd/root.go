package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	okStatus = color.New(color.FgGreen, color.Bold).SprintFunc()("✓")
)

var rootCmd = &cobra.Command{
	Use:   "passerd",
	Short: "passerd exposes a microblogging account as an IRC server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logrus.SetLevel(level)

		if viper.GetString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./passerd.yaml)")
	rootCmd.PersistentFlags().String("listen", ":6667", "IRC listen address")
	rootCmd.PersistentFlags().String("db-path", "passerd.db", "sqlite database path")
	rootCmd.PersistentFlags().String("api-base-url", "", "remote microblog API base URL")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	for _, name := range []string{"listen", "db-path", "api-base-url", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("passerd")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("PASSERD")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}
