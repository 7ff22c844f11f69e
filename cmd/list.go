package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled persons in the whitelist",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	wl, err := st.LoadWhitelist(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotBuilt) {
			fmt.Println("Whitelist is empty, run \"facegate build\" first")
			return nil
		}
		return err
	}

	fmt.Printf("Whitelist: %d person(s)\n", len(wl.Prototypes))
	for _, name := range wl.Persons() {
		fmt.Printf("  %s (%d reference embeddings)\n", name, len(wl.References[name]))
	}
	return nil
}
