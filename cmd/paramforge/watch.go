package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces rapid successive writes to the document file;
// editors often write-then-rename, producing multiple fsnotify events per
// save.
const watchDebounce = 200 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <document.json>",
	Short: "Rebuild whenever the document file changes on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		runAndReport(cmd, path)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()

		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("watching for changes... (Ctrl+C to exit)"))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var timer *time.Timer
		for {
			select {
			case <-sigCh:
				fmt.Fprintln(cmd.OutOrStdout(), "\nstopped watching.")
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(watchDebounce, func() { runAndReport(cmd, path) })
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render(err.Error()))
			}
		}
	},
}

func runAndReport(cmd *cobra.Command, path string) {
	res, err := runRebuild(path)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render("rebuild failed: "+err.Error()))
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d bodies, %d errors\n",
		passStyle.Render("rebuilt:"), len(res.Bodies), len(res.Errors))
}
