package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/graphseed/internal/cleanup"
)

var cleanupForce bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete isolated nodes from the graph",
	Long: `Delete every node that has no relationships from the configured Neo4j
database. The data usecase workflows run this automatically after upload;
use this command after an interrupted run.

Examples:
  graphseed cleanup           # Ask for confirmation first
  graphseed cleanup --force   # Skip the confirmation prompt`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cc := cfg.CleanupConfig()
	if err := cc.Validate(); err != nil {
		return err
	}

	if !cleanupForce {
		fmt.Printf("Delete all isolated nodes from %s? [y/N]: ", cc.URI)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cleanup cancelled.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := cleanup.New(cc).DeleteIsolatedNodes(ctx)
	if err != nil {
		printStatus("✗", fmt.Sprintf("Cleanup failed: %v", err), color.FgRed)
		return err
	}
	printStatus("✓", fmt.Sprintf("Removed %d isolated node(s)", summary.Removed), color.FgGreen)
	return nil
}

// printStatus prints a line with a colored status symbol.
func printStatus(symbol, msg string, attr color.Attribute) {
	c := color.New(attr)
	c.Printf("%s ", symbol)
	fmt.Println(msg)
}
