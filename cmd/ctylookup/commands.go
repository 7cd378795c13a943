package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"ctydat/cty"
	"ctydat/download"
)

type stationInfo struct {
	call  string
	point orb.Point
}

type resolver interface {
	Lookup(callsign string) (cty.Entity, bool)
}

func newLookupCmd(a *app) *cobra.Command {
	var showStats bool
	cmd := &cobra.Command{
		Use:   "lookup [CALLSIGN...]",
		Short: "Resolve callsigns (reads stdin when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.holder()
			if err != nil {
				return err
			}
			if err := h.Load(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "loaded CTY database with %d entries\n", h.Table().Len())
			st := a.station()
			if len(args) > 0 {
				for _, call := range args {
					printLookup(out, h, call, st)
				}
			} else if err := repl(cmd.Context(), cmd.InOrStdin(), out, h, st); err != nil {
				return err
			}
			if showStats {
				m := h.Resolver().Metrics()
				fmt.Fprintf(out, "lookups=%d cache_hits=%d cache_entries=%d validated=%d\n",
					m.TotalLookups, m.CacheHits, m.CacheEntries, m.Validated)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showStats, "stats", false, "print lookup cache statistics on exit")
	return cmd
}

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys PREFIX",
		Short: "List table keys starting with PREFIX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.holder()
			if err != nil {
				return err
			}
			if err := h.Load(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range h.Table().KeysWithPrefix(args[0]) {
				e, _ := h.Table().Entity(key)
				marker := ""
				if e.ExactMatch {
					marker = "="
				}
				fmt.Fprintf(out, "%s%s\t%s\n", marker, key, e.Name)
			}
			return nil
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the configured cty file if it changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.holder()
			if err != nil {
				return err
			}
			refresh := h.Refresh
			if force {
				refresh = h.ForceRefresh
			}
			if _, err := refresh(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			meta := download.ReadMetadata(a.cfg.CTY.StatusPath())
			fmt.Fprintf(out, "%s: %d entries", a.cfg.CTY.File, h.Table().Len())
			if meta != nil {
				fmt.Fprintf(out, ", %s, downloaded %s", humanize.Bytes(uint64(meta.SizeBytes)), humanize.Time(meta.DownloadedAt))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "download even if the server reports no change")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Print(cmd.OutOrStdout())
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Interactive lookups with scheduled background refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h, err := a.holder()
			if err != nil {
				return err
			}
			if err := h.Load(ctx); err != nil {
				return err
			}
			go h.Run(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "loaded CTY database with %d entries (refresh %s UTC)\n", h.Table().Len(), a.cfg.CTY.RefreshUTC)
			return repl(ctx, cmd.InOrStdin(), out, h, a.station())
		},
	}
}

// repl resolves one callsign per input line until EOF or ctx is done.
func repl(ctx context.Context, in io.Reader, out io.Writer, r resolver, st *stationInfo) error {
	fmt.Fprintln(out, "enter callsigns (Ctrl+D to quit)")

	// The reader goroutine may stay blocked on in after ctx is done; it exits
	// with the process.
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				if err := <-scanErr; err != nil {
					return errors.Wrap(err, "input error")
				}
				return nil
			}
			if call := strings.TrimSpace(line); call != "" {
				printLookup(out, r, call, st)
			}
		}
	}
}

func printLookup(out io.Writer, r resolver, call string, st *stationInfo) {
	e, ok := r.Lookup(call)
	if !ok {
		fmt.Fprintf(out, "%s -> no matching prefix\n", call)
		return
	}
	fmt.Fprintln(out, formatEntity(call, e, st))
}

func formatEntity(call string, e cty.Entity, st *stationInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> prefix=%s, country=%s, CQ=%d, ITU=%d, cont=%s, lat=%.2f, lon=%.2f",
		call, e.PrimaryPrefix, e.Name, e.CQZone, e.ITUZone, e.Continent, e.Latitude, e.Longitude)
	if grid, ok := e.Grid(); ok {
		fmt.Fprintf(&b, ", grid=%s", grid)
	}
	fmt.Fprintf(&b, ", utc=%s", formatOffset(e.UTCOffset))
	if e.ExactMatch {
		b.WriteString(", exact")
	}
	if e.WAEDC {
		b.WriteString(", waedc")
	}
	if st != nil {
		km, bearing := cty.Path(st.point, e)
		fmt.Fprintf(&b, ", dist=%skm, az=%.0f", humanize.Comma(int64(km+0.5)), bearing)
	}
	return b.String()
}

func formatOffset(secs int) string {
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("%s%02d:%02d", sign, secs/3600, secs%3600/60)
}
