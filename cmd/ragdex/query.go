package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
)

// questionArgs parses -k and joins the positional arguments into the question.
func questionArgs(c *cli, name string, args []string) (cfgPath string, k int, question string, err error) {
	fs, path := c.flags(name)
	topK := fs.Int("k", 0, "number of results (default from config)")
	if err := fs.Parse(args); err != nil {
		return "", 0, "", err
	}
	question = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return "", 0, "", fmt.Errorf("%w: a question is required", domain.ErrInvalidQuery)
	}
	return *path, *topK, question, nil
}

func runQuery(ctx context.Context, c *cli, args []string) error {
	cfgPath, k, question, err := questionArgs(c, "query", args)
	if err != nil {
		return err
	}
	ctx, cfg, err := c.setup(ctx, cfgPath)
	if err != nil {
		return err
	}

	be, err := openEngine(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer be.Close()

	hits, err := be.engine.Search(ctx, question, k)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	printHits(c.stdout, hits)
	return nil
}

func runAnswer(ctx context.Context, c *cli, args []string) error {
	cfgPath, k, question, err := questionArgs(c, "answer", args)
	if err != nil {
		return err
	}
	ctx, cfg, err := c.setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	if !cfg.Chat.Enabled {
		return errors.New("answer: chat is disabled in config")
	}

	be, err := openEngine(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer be.Close()

	svc := answeruc.New(be.engine, buildChat(cfg, c.logger), answeruc.Options{
		SystemPrompt: cfg.Chat.SystemPrompt,
		Instructions: cfg.Chat.Instructions,
	})
	ans, err := svc.Answer(ctx, question, k)
	if len(ans.Hits) > 0 {
		printHits(c.stdout, ans.Hits)
	}
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	fmt.Fprintf(c.stdout, "\n[Answer]\n%s\n", ans.Text)
	return nil
}

func printHits(w io.Writer, hits []record.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(w, "#%d score=%.4f title=%s source=%s chunk=%d\n",
			i+1, h.Score, h.Record.Title, h.Record.Source, h.Record.ChunkID)
	}
}
