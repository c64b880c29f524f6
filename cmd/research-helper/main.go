package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/research"
)

type options struct {
	topic     string
	overrides config.Overrides
	out       string
	verbose   bool
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	config.LoadDotEnv()

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "research-helper",
		Short: "A terminal-based research agent",
		Long: `research-helper researches a topic by iterating search, analysis, reflection and
refinement rounds and writes a Markdown report.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
			}
			if !cmd.Flags().Changed("topic") {
				topic, err := promptTopic(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				opts.topic = topic
			}
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&opts.topic, "topic", "t", "", "The research topic")
	f.IntVarP(&opts.overrides.Depth, "depth", "d", 0, "Number of research levels (default from RESEARCH_DEPTH or 2)")
	f.IntVarP(&opts.overrides.Breadth, "breadth", "b", 0, "Queries run per level (default from RESEARCH_BREADTH or 3)")
	f.StringVarP(&opts.overrides.SearchProvider, "provider", "p", "", "Search provider: tavily, firecrawl or arxiv")
	f.StringVarP(&opts.overrides.Model, "model", "m", "", "Model id as provider/name, e.g. google/gemini-3-flash-preview")
	f.StringVar(&opts.overrides.Variant, "variant", "", "Report pipeline: flat or sections")
	f.IntVarP(&opts.overrides.Concurrency, "concurrency", "c", 0, "Concurrent searches (at most 3)")
	f.StringVarP(&opts.out, "out", "o", "", "Write the report to this file instead of stdout")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity")

	return rootCmd
}

func promptTopic(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter research topic: ")
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read topic: %w", err)
	}
	topic := strings.TrimSpace(input)
	if topic == "" {
		return "", research.ErrEmptyTopic
	}
	return topic, nil
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg := config.Resolve(opts.overrides, nil)

	handle, err := research.Start(ctx, research.ResearchParams{Topic: opts.topic, Config: cfg})
	if err != nil {
		return err
	}

	for ev := range handle.Events() {
		if ev.Type == research.EventProgress {
			fmt.Fprintf(stderr, "[%5.1f%%] %s\n", ev.Percent, ev.Message)
		}
	}
	report, err := handle.Wait()
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	if opts.out == "" {
		_, err = fmt.Fprintln(stdout, report)
		return err
	}
	if err := os.WriteFile(opts.out, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(stderr, "Report written to %s\n", opts.out)
	return nil
}
