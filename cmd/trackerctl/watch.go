package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live turn order",
	Long: `Polls the live encounter and reprints the turn order whenever it
changes. Each poll replaces the whole view, so the overlay always matches the
server within one interval. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		threshold, _ := cmd.Flags().GetInt("failures")
		once, _ := cmd.Flags().GetBool("once")

		c, err := newClient()
		if err != nil {
			return err
		}
		logger := newLogger()
		defer logger.Sync()

		ov := &overlay{w: cmd.OutOrStdout()}
		p := watch.NewPoller(c.FetchLive,
			watch.WithInterval(interval),
			watch.WithFailureThreshold(threshold),
			watch.WithPollTimeout(viper.GetDuration("timeout")),
			watch.WithLogger(logger.With(zap.String("observer", "trackerctl"))),
			watch.OnUpdate(ov.update),
			watch.OnPersistentFailure(ov.unreachable),
		)

		if once {
			return p.Poll(cmd.Context())
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_ = p.Run(ctx)
		return nil
	},
}

// overlay reprints the rendered encounter only when it changes.
type overlay struct {
	w    io.Writer
	mu   sync.Mutex
	last string
	down bool
}

func (o *overlay) update(s watch.Snapshot) {
	text := "no live encounter\n"
	if s.Encounter != nil {
		text = renderEncounter(s.Encounter)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.down {
		fmt.Fprintln(o.w, infoStyle.Render("reconnected"))
		o.down = false
	} else if text == o.last {
		return
	}
	o.last = text
	fmt.Fprintln(o.w)
	fmt.Fprint(o.w, text)
}

func (o *overlay) unreachable(err error, failures int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.down = true
	fmt.Fprintln(o.w, warnStyle.Render(fmt.Sprintf("server unreachable after %d attempts: %v (showing last known state)", failures, err)))
}

func init() {
	watchCmd.Flags().Duration("interval", watch.DefaultInterval, "poll interval")
	watchCmd.Flags().Int("failures", watch.DefaultFailureThreshold, "consecutive failures before warning")
	watchCmd.Flags().Bool("once", false, "poll once, print, and exit")
	rootCmd.AddCommand(watchCmd)
}
