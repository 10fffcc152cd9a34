package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dxhq/dx/internal/config"
	"github.com/dxhq/dx/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		dsn         string
		projectRoot string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent check runs from the durable audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolvedDSN := dsn
			if resolvedDSN == "" && configFile != "" {
				cfg, err := config.LoadFromFile(configFile)
				if err == nil {
					resolvedDSN = cfg.Store.DSN
				}
			}
			if resolvedDSN == "" {
				return fmt.Errorf("no Postgres DSN given (--dsn or --config with store.dsn set); history requires the durable audit log")
			}

			ctx := context.Background()
			s, err := store.New(ctx, resolvedDSN)
			if err != nil {
				return fmt.Errorf("connect to audit store: %w", err)
			}
			defer s.Close()

			records, err := s.RecentChecks(ctx, projectRoot, limit)
			if err != nil {
				return fmt.Errorf("query history: %w", err)
			}
			if len(records) == 0 {
				fmt.Println("no check runs recorded")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  task=%d  kind=%-6s  score=%-3d  %dms  files=%d\n",
					rec.CompletedAt.Format("2006-01-02T15:04:05"), rec.TaskID, rec.Kind, rec.Score, rec.DurationMs, len(rec.Files))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (overrides config)")
	cmd.Flags().StringVar(&projectRoot, "project", "", "Project root to filter history by")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records to print")
	return cmd
}
