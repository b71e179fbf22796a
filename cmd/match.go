package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/events"
	"github.com/promnight/prom-match/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match <user-id>",
	Short: "Find (or show) the match of one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}

		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx := cmd.Context()
		s, _, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		notifier := events.Multi{events.LogNotifier{Logger: log}}
		if cfg.AMQP.URL != "" {
			pub, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
			if err != nil {
				return err
			}
			defer pub.Close()
			notifier = append(notifier, pub)
		}

		m := matcher.New(s, log,
			matcher.WithMaxAttempts(cfg.Matcher.MaxAttempts),
			matcher.WithZeroScore(cfg.Matcher.AllowZeroScore),
			matcher.WithNotifier(notifier),
		)
		res, err := m.FindBestMatch(ctx, userID)
		if err != nil {
			return err
		}
		log.Debug("match finished", zap.Int("attempts", res.Attempts))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}
