package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoobzio/flowz"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:     "flowz",
		Short:   "Two-stage parallel work pipeline demos",
		Long:    "flowz runs the bundled example pipelines so their configuration and behavior can be exercised from the command line.",
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	wordcountCfg.BindFlags(wordcountCmd.Flags())
	rootCmd.AddCommand(wordcountCmd)
}

var wordcountCfg = &flowz.Config{}

var wordcountCmd = &cobra.Command{
	Use:   "wordcount",
	Short: "Run the in-memory word-count example pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline := flowz.NewWorkPipeline(*wordcountCfg, wordcountHandlers())
		err := pipeline.Run(cmd.Context())

		var tripped *flowz.BreakerTripped
		if errors.As(err, &tripped) {
			return fmt.Errorf("pipeline aborted: %v", tripped.Reason)
		}
		return err
	},
}

func wordcountHandlers() flowz.Handlers[string] {
	words := []string{"the", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "dog"}

	return flowz.Handlers[string]{
		AcquireWork: func(ctx context.Context, distribute flowz.DistributeFunc[string]) error {
			for _, w := range words {
				if err := distribute(ctx, w); err != nil {
					return err
				}
			}
			return nil
		},
		OnWork: func(_ context.Context, word string) error {
			fmt.Println(word)
			return nil
		},
	}
}
