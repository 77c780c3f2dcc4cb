package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cittadino-app/cittadino/internal/app/questionbank"
	"github.com/cittadino-app/cittadino/internal/domain"
)

func init() {
	rootCmd.AddCommand(questionsCmd)
	questionsCmd.AddCommand(questionsImportCmd)
	questionsCmd.AddCommand(questionsGenerateCmd)
	questionsCmd.AddCommand(questionsTemplateCmd)

	questionsImportCmd.Flags().String("sheet", "", "Sheet to read (default: first sheet)")
	questionsImportCmd.Flags().Int("start-row", questionbank.DefaultImportConfig().StartRow, "First data row (1-based)")
	questionsGenerateCmd.Flags().String("date", "", "Date to schedule, YYYY-MM-DD (default: today)")
	questionsTemplateCmd.Flags().Bool("sample", false, "Include an example question")
}

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage the question bank and the daily schedule",
}

// ─── questions import ───────────────────────────────────────────────────────

var questionsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import questions from an .xlsx workbook",
	Long: `Import questions from an Excel workbook. Columns, left to right:
category, difficulty, question, option A-D, correct letter, explanation.
Invalid rows are reported and skipped; valid rows are imported.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuestionsImport,
}

func runQuestionsImport(cmd *cobra.Command, args []string) error {
	cfg := questionbank.DefaultImportConfig()
	cfg.Sheet, _ = cmd.Flags().GetString("sheet")
	cfg.StartRow, _ = cmd.Flags().GetInt("start-row")

	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := questionbank.NewImporter(cfg, d.Store).ImportFile(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Imported %d questions (%d rejected, %d blank rows)\n", res.Imported, len(res.Errors), res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "   • %s\n", e.Error())
	}
	return nil
}

// ─── questions generate ─────────────────────────────────────────────────────

var questionsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Schedule the daily questions for a date",
	Long:  `Pick one bank question per category and difficulty for the date. Existing schedule rows are kept.`,
	Args:  cobra.NoArgs,
	RunE:  runQuestionsGenerate,
}

func runQuestionsGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	date := d.Game.Today()
	if s, _ := cmd.Flags().GetString("date"); s != "" {
		date, err = time.ParseInLocation("2006-01-02", s, d.Game.Location())
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}

	rep, err := d.Daily.Generate(ctx, date)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %d created, %d already scheduled, %d without questions\n",
		rep.Date, rep.Created, rep.Existing, rep.Empty)
	return nil
}

// ─── questions template ─────────────────────────────────────────────────────

var questionsTemplateCmd = &cobra.Command{
	Use:   "template FILE",
	Short: "Write an empty import workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionsTemplate,
}

func runQuestionsTemplate(cmd *cobra.Command, args []string) error {
	var rows []domain.Question
	if sample, _ := cmd.Flags().GetBool("sample"); sample {
		rows = append(rows, domain.Question{
			Category:     "costituzione",
			Difficulty:   domain.DifficultyBeginner,
			Prompt:       "In che anno è entrata in vigore la Costituzione italiana?",
			Options:      []string{"1946", "1948", "1950"},
			CorrectIndex: 1,
			Explanation:  "La Costituzione è entrata in vigore il 1° gennaio 1948.",
		})
	}
	if err := questionbank.WriteWorkbook(args[0], rows); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Template written to %s\n", args[0])
	return nil
}
