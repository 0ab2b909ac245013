package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
	"github.com/saira-network/saira/internal/domain"
)

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(embedCmd)

	generateCmd.Flags().StringP("model", "m", "", "model path or ID (default [llm].model)")
	generateCmd.Flags().String("system", "", "system prompt")
	generateCmd.Flags().Int("max-tokens", 0, "maximum tokens to generate")
	generateCmd.Flags().Float32("temperature", 0, "sampling temperature")
	generateCmd.Flags().Float32("top-p", 0, "nucleus sampling threshold")

	embedCmd.Flags().StringP("model", "m", "", "model path or ID (default [llm].model)")
}

// ─── generate ───────────────────────────────────────────────────────────────

var generateCmd = &cobra.Command{
	Use:   "generate PROMPT...",
	Short: "Generate text with the configured LLM",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var opts domain.GenerateOptions
	opts.System, _ = cmd.Flags().GetString("system")
	opts.MaxTokens, _ = cmd.Flags().GetInt("max-tokens")
	opts.Temperature, _ = cmd.Flags().GetFloat32("temperature")
	opts.TopP, _ = cmd.Flags().GetFloat32("top-p")
	prompt := strings.Join(args, " ")

	return withModel(cmd, domain.ModelLLM, func(ctx context.Context, d *daemon.Daemon) error {
		text, err := d.Engine.LLMGenerate(ctx, prompt, opts)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "%s\n", text)
		return nil
	})
}

// ─── embed ──────────────────────────────────────────────────────────────────

var embedCmd = &cobra.Command{
	Use:   "embed TEXT...",
	Short: "Print the embedding vector of a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withModel(cmd, domain.ModelLLM, func(ctx context.Context, d *daemon.Daemon) error {
			vec, err := d.Engine.CreateEmbedding(ctx, text)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%v\n", vec)
			return nil
		})
	},
}

// withModel opens an in-process engine, loads the model named by --model
// (or the config), runs fn and shuts everything down.
func withModel(cmd *cobra.Command, kind domain.ModelKind, fn func(context.Context, *daemon.Daemon) error) error {
	return withModelOptions(cmd, kind, daemon.Options{Journal: true}, fn)
}

func withModelOptions(cmd *cobra.Command, kind domain.ModelKind, opts daemon.Options, fn func(context.Context, *daemon.Daemon) error) error {
	d, err := openDaemon(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer d.Close(context.WithoutCancel(ctx))

	path, _ := cmd.Flags().GetString("model")
	if path == "" {
		path = d.Config().Lane(kind).Model
	}
	if path == "" {
		return fmt.Errorf("no %s model: pass --model or set [%s].model in %s", kind, kind, daemon.ConfigPath(home()))
	}
	if _, err := d.Engine.LoadModel(ctx, kind, path); err != nil {
		return err
	}
	return fn(ctx, d)
}
