package main

import (
	"fmt"
	"os"

	"surveyentry/internal/app"
	"surveyentry/internal/auth"
	"surveyentry/internal/respondent"
	"surveyentry/internal/store"

	"github.com/spf13/cobra"
)

var (
	operatorFullName string
	operatorPassword string
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage data entry operators",
}

var operatorCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an operator account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := operatorPassword
		if password == "" {
			password = os.Getenv("OPERATOR_PASSWORD")
		}

		dbConn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer dbConn.Close()

		svc := auth.NewService(auth.NewPostgresRepository(dbConn), auth.ServiceConfig{Logger: logger})
		op, err := svc.CreateOperator(cmd.Context(), auth.CreateOperatorInput{
			Username: args[0],
			FullName: operatorFullName,
			Password: password,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created operator %s (id %d)\n", op.Username, op.ID)
		return nil
	},
}

var respondentsCmd = &cobra.Command{
	Use:   "respondents",
	Short: "Bulk respondent operations",
}

var respondentsImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import a respondent roster through the duplicate check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open roster: %w", err)
		}
		defer f.Close()

		rules, err := app.LoadRules(cfg.SurveyRulesFile)
		if err != nil {
			return err
		}
		dbConn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer dbConn.Close()

		svc := respondent.NewService(store.NewPostgresStore(dbConn), respondent.ServiceConfig{
			Rules:  rules,
			Logger: logger,
		})
		report, err := svc.ImportRosterExcel(cmd.Context(), f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, row := range report.Rows {
			if row.Status == respondent.RosterCreated {
				continue
			}
			fmt.Fprintf(out, "row %d %q: %s %s\n", row.Row, row.Name, row.Status, row.Error)
		}
		fmt.Fprintf(out, "created %d, needs review %d, failed %d of %d rows\n",
			report.CreatedRows, report.ReviewRows, report.FailedRows, report.TotalRows)
		return nil
	},
}

func init() {
	operatorCreateCmd.Flags().StringVar(&operatorFullName, "full-name", "", "Display name")
	operatorCreateCmd.Flags().StringVar(&operatorPassword, "password", "", "Password (or set OPERATOR_PASSWORD)")
}
