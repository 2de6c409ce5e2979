package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Reinitialize even if .stagegate/ exists")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a StageGate workspace",
	Long: `Creates .stagegate/ in the current directory (or --dir) with a default
config.yaml and an empty session.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := dirFlag
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		root = cwd
	}
	force, _ := cmd.Flags().GetBool("force")

	dir, err := initWorkspace(root, force)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized StageGate workspace in %s\n", dir)
	return nil
}

func initWorkspace(root string, force bool) (string, error) {
	dir := filepath.Join(root, WorkspaceDirName)
	if _, err := os.Stat(dir); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to reinitialize)", dir)
	}

	if err := os.MkdirAll(filepath.Join(dir, "checkpoints"), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := config.Save(dir, config.Default()); err != nil {
		return "", err
	}

	ws, err := openWorkspaceAt(dir)
	if err != nil {
		return "", err
	}
	m, err := ws.load()
	if err != nil {
		return "", err
	}
	if err := ws.save(m); err != nil {
		return "", err
	}
	ws.audit(AuditWorkspaceInitialized, map[string]interface{}{
		"session": m.Store().SessionID(),
	})
	return dir, nil
}
