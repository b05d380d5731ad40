package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/app"
)

func (c *cli) riskCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Print the security risk panel and the suspicious activity report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store app.Store) error {
				agg := analytics.New(store, nil, c.logger, analytics.Options{
					Location:            c.cfg.Location,
					SuspiciousThreshold: c.cfg.SuspiciousThreshold,
					SuspiciousWindow:    c.cfg.SuspiciousWindow,
				})
				o, err := agg.Overview(cmd.Context())
				if err != nil {
					return fmt.Errorf("build overview: %w", err)
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(struct {
						Attempts    int64                      `json:"attempts_disabled"`
						RiskLevel   analytics.RiskLevel        `json:"risk_level"`
						TopUser     string                     `json:"top_user"`
						TopDocument string                     `json:"top_document"`
						Suspicious  analytics.SuspiciousReport `json:"suspicious"`
					}{o.Attempts, o.RiskLevel, o.TopUser, o.TopDocument, o.Suspicious})
				}
				fmt.Fprintf(out, "Documents:    %d (active %d, disabled %d, archived %d)\n",
					o.TotalDocuments, o.ActiveDocuments, o.DisabledDocuments, o.ArchivedDocuments)
				fmt.Fprintf(out, "Attempts:     %d\n", o.Attempts)
				fmt.Fprintf(out, "Risk level:   %s\n", o.RiskLevel)
				fmt.Fprintf(out, "Top user:     %s\n", o.TopUser)
				fmt.Fprintf(out, "Top document: %s\n", o.TopDocument)
				s := o.Suspicious
				if s.Empty() {
					fmt.Fprintf(out, "No suspicious activity since %s\n", s.Since.Format("2006-01-02 15:04"))
					return nil
				}
				fmt.Fprintf(out, "Suspicious activity since %s (threshold %d):\n", s.Since.Format("2006-01-02 15:04"), s.Threshold)
				for _, row := range s.Users {
					fmt.Fprintf(out, "  user %s: %d attempts\n", row.Label, row.Total)
				}
				for _, row := range s.Documents {
					fmt.Fprintf(out, "  document %s: %d attempts\n", row.Label, row.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}
