package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Alfex4936/feishu-outbound/internal/chunk"
	"github.com/Alfex4936/feishu-outbound/internal/config"
	"github.com/Alfex4936/feishu-outbound/internal/local"
	"github.com/Alfex4936/feishu-outbound/internal/util"
	"github.com/Alfex4936/feishu-outbound/outbound"
)

type chunkFlags struct {
	file  string
	mode  string
	limit int
}

func (f *chunkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "file to read instead of args or stdin")
	cmd.Flags().StringVar(&f.mode, "mode", "", "splitter: markdown | plain (default from OUTBOUND_CHUNK_MODE)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "chunk size in characters, <= 0 disables splitting (default from OUTBOUND_TEXT_LIMIT)")
}

// apply lets flags that were set on the command line win over cfg.
func (f *chunkFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("mode") {
		cfg.ChunkMode = f.mode
	}
	if cmd.Flags().Changed("limit") {
		cfg.TextLimit = f.limit
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "feishu-send",
		Short: "Split agent replies into Feishu-sized messages and send them",
		Long: `feishu-send previews or delivers text through the outbound adapter.

Configuration is read from the environment (and a .env file):
  FEISHU_APP_ID, FEISHU_APP_SECRET, FEISHU_BASE_URL, FEISHU_RECEIVE_ID_TYPE,
  OUTBOUND_CHUNK_MODE, OUTBOUND_TEXT_LIMIT, OUTBOUND_MAX_RETRIES, ...`,
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.AddCommand(newSplitCmd(), newSendCmd())
	return root
}

func newSplitCmd() *cobra.Command {
	var f chunkFlags
	cmd := &cobra.Command{
		Use:   "split [text]",
		Short: "Print the chunks a text would be sent as",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			text, err := readText(cmd, f.file, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outbound.Split(text, cfg.Mode(), cfg.TextLimit))
		},
	}
	f.register(cmd)
	return cmd
}

func newSendCmd() *cobra.Command {
	var (
		f       chunkFlags
		to      string
		media   string
		dryRun  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send text and optionally one media asset",
		Long: `send splits the text and delivers every chunk in order. With --media the
asset is uploaded after the text; if that fails a link to it is sent instead.

Examples:
  feishu-send send --to oc_xxx "hello"
  feishu-send send --to email:alice@example.com -f reply.md
  feishu-send send --to oc_xxx --media https://example.com/a.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}

			var text string
			if media == "" || f.file != "" || len(args) > 0 {
				if text, err = readText(cmd, f.file, args); err != nil {
					return err
				}
			}

			var sender outbound.Sender
			if dryRun {
				sender = local.New(cmd.OutOrStdout())
			} else {
				if !cfg.HasCredentials() {
					return fmt.Errorf("send requires FEISHU_APP_ID and FEISHU_APP_SECRET (or --dry-run)")
				}
				fc, err := cfg.NewFeishu()
				if err != nil {
					return err
				}
				sender = fc
			}

			a, err := cfg.NewAdapter(sender, outbound.LogReporter{Logger: log.New(cmd.ErrOrStderr(), "", log.LstdFlags)})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d, err := a.SendMedia(ctx, to, text, media)
			if d != nil && !dryRun {
				if perr := printJSON(cmd.OutOrStdout(), d); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", "receive id: oc_/ou_/on_ id, email, or type:id (required)")
	cmd.Flags().StringVar(&media, "media", "", "media URL to upload after the text")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print messages instead of sending them")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func loadConfig(cmd *cobra.Command, f *chunkFlags) (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f.apply(cmd, cfg)
	if _, err := chunk.ParseMode(cfg.ChunkMode); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readText(cmd *cobra.Command, file string, args []string) (string, error) {
	switch {
	case len(args) > 0:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := util.MarshalNoEscape(v, true)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
