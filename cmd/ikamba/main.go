package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ikambaremit/ikamba-bot/internal/config"
	"github.com/ikambaremit/ikamba-bot/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "ikamba",
	Short: "ikamba - WhatsApp customer assistant for Ikamba Remit",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bot (WhatsApp channel + status web page)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize the config file and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resolved configuration",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.WhatsApp.MediaDir != "" {
		if err := os.MkdirAll(cfg.WhatsApp.MediaDir, 0755); err != nil {
			return fmt.Errorf("create media dir: %w", err)
		}
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Review %s (AI endpoint, allowFrom, pause phrase)\n", cfgPath)
	fmt.Println("  2. Run 'ikamba serve' and scan the QR code to pair")
	fmt.Printf("  3. Open http://localhost:%d to check status\n", cfg.Web.Port)

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("AI endpoint: %s (mode=%s)\n", cfg.AI.URL, cfg.AI.Mode)
	fmt.Printf("Web: %s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Printf("Session store: %s\n", cfg.WhatsApp.StorePath)
	fmt.Printf("Media dir: %s\n", cfg.WhatsApp.MediaDir)
	if len(cfg.WhatsApp.AllowFrom) > 0 {
		fmt.Printf("Allow from: %v\n", cfg.WhatsApp.AllowFrom)
	} else {
		fmt.Println("Allow from: everyone")
	}
	fmt.Printf("Pause duration: %d minutes\n", cfg.Control.PauseMinutes)
	fmt.Printf("Idle eviction: %d hours\n", cfg.Session.IdleEvictHours)

	if _, err := os.Stat(cfg.WhatsApp.StorePath); err == nil {
		fmt.Println("WhatsApp pairing: store present")
	} else {
		fmt.Println("WhatsApp pairing: not paired (run 'ikamba serve' and scan the QR code)")
	}

	return nil
}
