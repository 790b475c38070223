package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/client"
	"github.com/cory-johannsen/initiative/internal/config"
	"github.com/cory-johannsen/initiative/internal/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trackerctl",
	Short: "Drive and watch initiative tracker encounters",
	Long: `trackerctl talks to a running trackerd over HTTP. The GM uses it to
build encounters, run turns and apply damage; anyone can use "watch" to follow
the live turn order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.trackerctl.yaml)")
	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "tracker server base URL")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".trackerctl")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("TRACKERCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

func newClient() (*client.Client, error) {
	return client.New(viper.GetString("server"), viper.GetDuration("timeout"))
}

func newLogger() *zap.Logger {
	logger, err := observability.NewLogger(config.LoggingConfig{
		Level:  viper.GetString("log_level"),
		Format: "console",
	})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// requestContext bounds a single command's round trips.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
}

// apiClient carries the client and request context through a command.
type apiClient struct {
	*client.Client
	ctx    context.Context
	logger *zap.Logger
}

func withClient(cmd *cobra.Command, fn func(c *apiClient) error) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	logger := newLogger()
	defer logger.Sync()
	return fn(&apiClient{Client: c, ctx: ctx, logger: logger})
}
