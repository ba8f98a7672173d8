package main

import (
	"fmt"

	"github.com/ryosukesatoh/court-digest/internal/pdftext"
	"github.com/ryosukesatoh/court-digest/internal/runner"
	"github.com/ryosukesatoh/court-digest/internal/summarizer"
	"github.com/spf13/cobra"
)

type summarizeOptions struct {
	pdfs       []string
	promptFile string
	prompt     string
	model      string
	outputDir  string
}

func newSummarizeCmd(g *globalOptions) *cobra.Command {
	o := &summarizeOptions{}

	cmd := &cobra.Command{
		Use:   "summarize [pdf...]",
		Short: "Summarize local opinion PDFs without reading the mailbox",
		Long: `summarize extracts the text of each PDF, summarizes it, and writes
<output-dir>/<YYYY.MM.DD>_<case>.txt (or <name>-summary.txt when no case number
can be found). The store and the digest are not touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, g, args)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&o.pdfs, "pdf", nil, "PDF file to summarize (repeatable)")
	f.StringVar(&o.promptFile, "prompt-file", "", "File holding the summarization prompt")
	f.StringVar(&o.prompt, "prompt", "", "Inline summarization prompt")
	f.StringVar(&o.model, "model", "", "Model name (overrides config)")
	f.StringVar(&o.outputDir, "output-dir", "", "Directory for summary files (default: store summary dir)")
	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")

	return cmd
}

func (o *summarizeOptions) run(cmd *cobra.Command, g *globalOptions, args []string) error {
	pdfs := append(append([]string{}, o.pdfs...), args...)
	if len(pdfs) == 0 {
		return fmt.Errorf("no PDF given: pass --pdf FILE")
	}

	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if o.model != "" {
		cfg.Summarizer.Model = o.model
	}
	if o.prompt != "" || o.promptFile != "" {
		cfg.Summarizer.Prompt = o.prompt
		cfg.Summarizer.PromptFile = o.promptFile
	}
	outDir := o.outputDir
	if outDir == "" {
		outDir = cfg.Store.SummaryDir
	}

	if err := cfg.Summarizer.Validate(); err != nil {
		return err
	}
	prompt, err := summarizer.LoadPrompt(cfg.Summarizer.Prompt, cfg.Summarizer.PromptFile)
	if err != nil {
		return err
	}
	sum, err := summarizer.New(cfg.Summarizer, prompt, logger)
	if err != nil {
		return err
	}

	written, err := runner.NewFileSummarizer(pdftext.New(), sum, logger).
		SummarizeFiles(cmd.Context(), pdfs, outDir)
	for _, p := range written {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return err
}
