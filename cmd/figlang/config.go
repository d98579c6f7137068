package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/config"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage figlang configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the figlang home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := dir.EnsureExists(); err != nil {
			return err
		}
		if dir.ConfigExists() {
			return fmt.Errorf("config already exists at %s", dir.ConfigPath())
		}
		if err := config.WriteDefault(dir.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("wrote default config to %s\n", dir.ConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
