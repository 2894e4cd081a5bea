package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"k12-tutor/internal/integrations/gemini"
)

const probePrompt = "Explain what water is in simple terms for a 5-year-old."

// runProbe calls the configured model directly, bypassing the fallback
// masking, so operators can see the real failure.
func runProbe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, shutdownTracing, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer func() { _ = shutdownTracing(context.Background()) }()

	c := &clients{cfg: cfg, log: log}
	model, err := c.model(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.ModelTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Testing %s model...\n", cfg.ModelProvider)
	text, err := model.Generate(callCtx, probePrompt)
	if err != nil {
		fmt.Fprintf(out, "Model call failed: %v\n", err)
		if hint := gemini.Hint(err); hint != "" {
			fmt.Fprintf(out, "Hint: %s\n", hint)
		}
		return errors.New("probe failed")
	}
	fmt.Fprintf(out, "Success! Response:\n%s\n", text)
	return nil
}
