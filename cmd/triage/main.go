// cmd/triage/main.go
//
// triage is the operator CLI: classify a single ticket from the command
// line without going through the helpdesk poller.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/engine/classify"
	"helpdesk-triage/internal/engine/invoke"
	"helpdesk-triage/internal/engine/schema"
	"helpdesk-triage/internal/engine/sentiment"
)

var (
	subject      string
	stdinBody    bool
	outputFormat string
	rulesOnly    bool
)

func main() {
	root := &cobra.Command{
		Use:   "triage",
		Short: "Support ticket triage from the command line",
	}
	root.AddCommand(newClassifyCmd())

	if err := root.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [TEXT]",
		Short: "Classify one ticket and print the decision",
		Long: `Classify a single ticket through the full engine: the configured model
list with extraction and validation, falling back to keyword rules when no
model produces a valid decision.

Examples:
  # Classify inline text
  triage classify "I was charged twice for my order"

  # Classify with a subject line
  triage classify "The page keeps crashing" -s "Checkout broken"

  # Read the ticket body from stdin
  cat ticket.txt | triage classify --stdin

  # Skip the models and show the keyword-rule decision
  triage classify "Where is my package?" --rules-only`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClassify,
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Ticket subject line")
	cmd.Flags().BoolVar(&stdinBody, "stdin", false, "Read the ticket body from stdin")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "human", "Output format (human, json)")
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "Use only the deterministic keyword rules")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	body, err := readBody(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	ticket := schema.TicketInput{
		ID:      "cli",
		Subject: subject,
		Body:    body,
	}

	rules := classify.RulesFromConfig(cfg.Fallback)
	detector := sentiment.NewDetector()

	var decision schema.Decision
	if rulesOnly {
		decision = rules.Decide(ticket)
	} else {
		s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
		s.Suffix = " Classifying..."
		s.Start()

		log := logger.NewNoOpLogger()
		completer := invoke.NewOllamaClient(cfg.Models.BaseURL, cfg.Engine.MaxTokens, log)
		orchestrator := classify.New(cfg.Models.Candidates, completer, nil, rules, 1, log)

		decision = orchestrator.Classify(context.Background(), ticket)
		s.Stop()
	}

	label := detector.Detect(ticket.Text())

	if outputFormat == "json" {
		return printJSON(decision, label)
	}
	printHuman(decision, label)
	return nil
}

func readBody(args []string) (string, error) {
	if stdinBody {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("provide ticket text as an argument or use --stdin")
	}
	return args[0], nil
}

func printJSON(decision schema.Decision, label sentiment.Label) error {
	out := struct {
		schema.Decision
		Sentiment string `json:"sentiment"`
	}{decision, string(label)}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printHuman(decision schema.Decision, label sentiment.Label) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	cyan.Println("Triage decision")
	fmt.Printf("Category:    %s / %s\n", decision.Category, decision.Subcategory)
	fmt.Printf("Sentiment:   %s\n", label)
	fmt.Printf("Summary:     %s\n", decision.Summary)
	fmt.Printf("Source:      %s\n", decision.ConfidenceSource)
	fmt.Println()

	if decision.ConfidenceSource == schema.SourceRuleFallback {
		yellow := color.New(color.FgYellow)
		yellow.Println("Decided by keyword rules; no model produced a valid decision.")
		fmt.Println()
	}

	green := color.New(color.FgGreen)
	green.Println("Suggested response:")
	fmt.Println(decision.Response)
}

func printError(msg string) {
	red := color.New(color.FgRed)
	red.Fprintf(os.Stderr, "error: %s\n", msg)
}
