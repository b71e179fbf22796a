package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/seed"
)

var seedOpts seed.Options
var seedTruncate bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with deterministic fake students",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		if err := seedOpts.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		s, pg, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		if pg != nil {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			if seedTruncate {
				if err := pg.Truncate(ctx); err != nil {
					return err
				}
				log.Info("truncated users, profiles and answers")
			}
		} else if seedTruncate {
			return errors.New("--truncate needs the postgres driver")
		}

		res, err := seed.Run(ctx, s, seedOpts, log)
		if err != nil {
			return err
		}
		log.Info("seeded", zap.Ints("user_ids", res.UserIDs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedOpts.Count, "count", 100, "number of users to create")
	seedCmd.Flags().Int64Var(&seedOpts.Seed, "seed", 42, "RNG seed (deterministic)")
	seedCmd.Flags().StringVar(&seedOpts.Password, "password", "test1234", "password assigned to all users")
	seedCmd.Flags().Float64Var(&seedOpts.AnswerRate, "answer-rate", 0.8, "proportion of users who complete the questionnaire (0..1)")
	seedCmd.Flags().BoolVar(&seedTruncate, "truncate", false, "TRUNCATE target tables before running")
}
