package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/auditsim/pkg/client"
	"github.com/rmax-ai/auditsim/pkg/simulation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of a run started with --metrics-addr",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		watch, _ := cmd.Flags().GetBool("watch")
		c := client.NewClient(addr)

		if watch {
			src := &remoteProgress{client: c}
			src.refresh(cmd.Context())
			_, err := tea.NewProgram(newWatchModel(src, addr)).Run()
			return err
		}

		p, err := c.Progress(cmd.Context())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

// remoteProgress keeps the last snapshot fetched from the server so the
// view never blocks on the network.
type remoteProgress struct {
	client *client.Client

	mu   sync.Mutex
	last simulation.Progress
	busy bool
}

func (r *remoteProgress) Progress() simulation.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.busy {
		r.busy = true
		go r.refresh(context.Background())
	}
	return r.last
}

func (r *remoteProgress) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	p, err := r.client.Progress(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
	if err == nil {
		r.last = p
	}
}

func init() {
	statusCmd.Flags().String("addr", client.DefaultEndpoint, "base URL of the run's status API")
	statusCmd.Flags().Bool("watch", false, "show a live progress view")
	rootCmd.AddCommand(statusCmd)
}
