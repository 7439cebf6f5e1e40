package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cwygoda/catchbot/internal/adapter/redis"
	"github.com/cwygoda/catchbot/internal/adapter/telegram"
	"github.com/cwygoda/catchbot/internal/domain"
	"github.com/cwygoda/catchbot/internal/ingest"
)

func (c *cli) newSubmitCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "submit [file|-]",
		Short: "Publish the links in a file, stdin or --text and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := submitInput(cmd.InOrStdin(), args, text)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := connectRedis(ctx, c.cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			dispatcher := domain.NewDispatcher(redis.NewPublisher(client, c.cfg.Redis.Channel))
			report := dispatcher.DispatchBatch(ctx, input)
			log.Info().
				Int("total", report.Total).
				Int("queued", report.Queued()).
				Msg("batch submitted")

			out := cmd.OutOrStdout()
			for _, line := range telegram.BatchReplies(report) {
				fmt.Fprintln(out, line)
			}
			if report.Total > 0 && report.Queued() == 0 {
				return errors.New("no link could be queued")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Text to scan instead of a file")
	return cmd
}

// submitInput picks the text to scan: --text, a file argument (plain text or
// a zipped chat export), or stdin for "-" or no argument.
func submitInput(stdin io.Reader, args []string, text string) (string, error) {
	if text != "" {
		if len(args) > 0 {
			return "", errors.New("use either --text or a file, not both")
		}
		return text, nil
	}

	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if !utf8.Valid(data) {
			return "", ingest.ErrUnreadable
		}
		return string(data), nil
	}

	if strings.EqualFold(filepath.Ext(args[0]), ".zip") {
		textPath, cleanup, err := ingest.ExtractArchive(args[0], os.TempDir(), time.Now())
		defer cleanup()
		if err != nil {
			return "", err
		}
		return ingest.ReadText(textPath)
	}
	return ingest.ReadText(args[0])
}
