package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"proxyencoder/internal/config"
	"proxyencoder/internal/editor"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/prompt"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/reconcile"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	yesFlag      *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, yesFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		yesFlag:      yesFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return strings.TrimSpace(*c.logLevelFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.App.LogLevel
	}
	return "info"
}

// logger writes CLI logs to stderr so stdout stays free for tables and
// prompts.
func (c *commandContext) logger() (*slog.Logger, error) {
	format := "console"
	if cfg := c.configValue(); cfg != nil && cfg.App.LogFormat != "" {
		format = cfg.App.LogFormat
	}
	return logging.New(logging.Options{
		Level:   c.logLevel(),
		Format:  format,
		Outputs: []string{"stderr"},
	})
}

// prompter answers every question when --yes or app.assume_yes is set, or
// when stdin is not a terminal. Otherwise it asks on the command's streams.
func (c *commandContext) prompter(cmd *cobra.Command) reconcile.Prompter {
	if c.assumeYes() {
		return prompt.Auto{Answer: true}
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return prompt.Auto{Answer: false}
	}
	return prompt.NewTerminal(in, cmd.OutOrStdout())
}

func (c *commandContext) assumeYes() bool {
	if c.yesFlag != nil && *c.yesFlag {
		return true
	}
	cfg := c.configValue()
	return cfg != nil && cfg.App.AssumeYes
}

func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) withEditor(logger *slog.Logger, fn func(editor.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := editor.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
