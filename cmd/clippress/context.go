package main

import (
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"clippress/internal/config"
)

type commandContext struct {
	configFlag *string
	ownerFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, ownerFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		ownerFlag:  ownerFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
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

// owner returns the required --owner flag value.
func (c *commandContext) owner() (string, error) {
	if c.ownerFlag == nil {
		return "", errors.New("owner is required; pass --owner")
	}
	owner := strings.TrimSpace(*c.ownerFlag)
	if owner == "" {
		return "", errors.New("owner is required; pass --owner")
	}
	return owner, nil
}

// withApp builds the full service stack, runs fn, drains in-process jobs,
// and tears everything down. Used by the one-shot commands.
func (c *commandContext) withApp(fn func(a *app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.shutdown(true)
	return fn(a)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
