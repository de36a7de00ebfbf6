package main

import (
	"bufio"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/levelx/growth-cli/internal/analysis"
)

var (
	batchFile        string
	batchConcurrency int
	batchRefresh     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run analyses for many accounts concurrently",
	Long:  "Reads one handle per line from a file and runs a full analysis for each. Runs for different accounts share only the store, so they execute concurrently.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		handles, err := readHandles(batchFile)
		if err != nil {
			return err
		}
		if len(handles) == 0 {
			zap.L().Info("no handles to process")
			return nil
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentAccounts
		}

		zap.L().Info("processing batch",
			zap.Int("accounts", len(handles)),
			zap.Int("concurrency", concurrency),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var succeeded, failed atomic.Int64

		for _, handle := range handles {
			g.Go(func() error {
				log := zap.L().With(zap.String("handle", handle))

				account, err := st.GetAccountByHandle(gctx, handle)
				if err != nil {
					failed.Add(1)
					log.Error("account lookup failed", zap.Error(err))
					return nil
				}
				if account == nil {
					account, err = st.CreateAccount(gctx, handle)
					if err != nil {
						failed.Add(1)
						log.Error("account registration failed", zap.Error(err))
						return nil
					}
				}

				result, err := svc.RunFullAnalysis(gctx, account.ID, analysis.RunOptions{
					ForceRefreshProfile: batchRefresh,
					ForceRefreshPeers:   batchRefresh,
				})
				if err != nil {
					failed.Add(1)
					log.Error("analysis failed", zap.Error(err))
					return nil // don't abort the batch on individual failure
				}

				succeeded.Add(1)
				log.Info("analysis complete",
					zap.Float64("growth_score", result.Insights.GrowthScore),
					zap.Int("peers", len(result.Peers)),
					zap.Float64("cost_usd", result.CostUSD),
				)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch processing")
		}

		zap.L().Info("batch complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		return nil
	},
}

func readHandles(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var handles []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		h := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "@")
		if h == "" || strings.HasPrefix(h, "#") {
			continue
		}
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		handles = append(handles, h)
	}
	return handles, eris.Wrapf(scanner.Err(), "read %s", path)
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one handle per line (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent analyses (default from config)")
	batchCmd.Flags().BoolVar(&batchRefresh, "refresh", false, "bypass profile and peer caches")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
