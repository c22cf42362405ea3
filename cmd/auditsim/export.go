package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/auditsim/pkg/reports"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded telemetry from SQLite to CSV",
	Long: `Reads the SQLite telemetry written by a run and writes CSV. Without
--report every record is written with all its columns; --report selects a
derived dataset (access_log, usage or scenarios).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		dbPath, _ := f.GetString("db")
		outPath, _ := f.GetString("out")
		agentID, _ := f.GetString("agent")
		scen, _ := f.GetString("scenario")
		limit, _ := f.GetInt("limit")
		report, _ := f.GetString("report")

		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("telemetry db: %w", err)
		}
		rec, err := telemetry.NewSQLiteRecorder(dbPath)
		if err != nil {
			return err
		}
		defer rec.Close()

		var w io.Writer = cmd.OutOrStdout()
		if outPath != "" {
			file, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer file.Close()
			w = file
		}

		if report != "" {
			params, err := reportParams(cmd)
			if err != nil {
				return err
			}
			gen, err := reports.NewReportGenerator(reports.ReportType(report), rec)
			if err != nil {
				return err
			}
			r, err := gen.Generate(cmd.Context(), params)
			if err != nil {
				return err
			}
			_, err = io.Copy(w, r)
			return err
		}

		records, err := rec.Query(cmd.Context(), telemetry.Filter{AgentID: agentID, Scenario: scen, Limit: limit})
		if err != nil {
			return err
		}
		if err := telemetry.WriteCSV(w, records); err != nil {
			return err
		}
		if outPath != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", len(records), outPath)
		}
		return nil
	},
}

func reportParams(cmd *cobra.Command) (reports.ReportParams, error) {
	f := cmd.Flags()
	params := reports.ReportParams{Filters: map[string]interface{}{}}
	for _, key := range []string{"agent", "scenario", "role", "outcome", "bucket"} {
		if v, _ := f.GetString(key); v != "" {
			name := key
			if key == "agent" {
				name = "agent_id"
			}
			params.Filters[name] = v
		}
	}
	for _, b := range []struct {
		flag string
		dst  *time.Time
	}{{"from", &params.Start}, {"to", &params.End}} {
		v, _ := f.GetString(b.flag)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, fmt.Errorf("--%s: %w", b.flag, err)
		}
		*b.dst = ts
	}
	return params, nil
}

func init() {
	f := exportCmd.Flags()
	f.String("db", "telemetry.db", "SQLite telemetry database written by a run")
	f.String("out", "", "CSV file to write (stdout when empty)")
	f.String("report", "", "derived report: access_log|usage|scenarios")
	f.String("agent", "", "only this agent")
	f.String("scenario", "", "only actions of this scenario")
	f.String("role", "", "access_log: only this role")
	f.String("outcome", "", "access_log: only this outcome")
	f.String("bucket", "", "usage: hour|day")
	f.String("from", "", "reports: RFC3339 start of the simulated window")
	f.String("to", "", "reports: RFC3339 end of the simulated window")
	f.Int("limit", 0, "maximum number of records (0 for all)")
	rootCmd.AddCommand(exportCmd)
}
