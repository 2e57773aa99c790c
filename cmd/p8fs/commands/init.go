package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Write the default configuration to the config path.

Examples:
  # Write to the default location
  p8fs init

  # Write to a custom path
  p8fs init --config /etc/p8fs/config.yaml

  # Overwrite an existing file
  p8fs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.DefaultConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to point at your broker and blob store")
	fmt.Println("  2. Run migrations: p8fs migrate")
	fmt.Println("  3. Start the pipeline: p8fs router / p8fs worker --tier small")
	return nil
}
