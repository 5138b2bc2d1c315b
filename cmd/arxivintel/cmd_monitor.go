package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ArxivIntel/internal/queue"
	"ArxivIntel/internal/usecase"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll feeds on the configured interval until interrupted",
	RunE:  runMonitor,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll feeds once, process new papers and evaluate the digest trigger",
	RunE:  runCheck,
}

var addCmd = &cobra.Command{
	Use:   "add <arxiv-id>",
	Short: "Fetch, score and queue a single paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var digestCmd = &cobra.Command{
	Use:     "send-digest",
	Aliases: []string{"digest"},
	Short:   "Send a digest of the current queue now",
	RunE:    runDigest,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Pipeline.PollOnce(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queue: %d papers\n", a.Queue.Count())
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline.AddPaper(ctx, args[0])
	if res.Paper.Scoring == nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", res.Paper.Title)
	fmt.Fprintln(out, renderScore(*res.Paper.Scoring))
	switch {
	case !res.Relevant:
		fmt.Fprintln(out, "Below relevance threshold, not queued.")
	case res.Queued:
		fmt.Fprintf(out, "Queued (%d papers waiting).\n", a.Queue.Count())
	default:
		fmt.Fprintln(out, "Already queued.")
	}
	if res.DigestSent {
		fmt.Fprintln(out, "Digest sent.")
	}
	return err
}

func runDigest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Pipeline.SendDigest(ctx, queue.TriggerManual)
	if errors.Is(err, usecase.ErrEmptyQueue) {
		fmt.Fprintln(cmd.OutOrStdout(), "No papers in queue.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Digest %s: %d papers (%d HIGH), emailed=%t, saved to %s\n",
		report.ID, report.PaperCount, report.HighCount, report.Emailed, report.Path)
	return nil
}
