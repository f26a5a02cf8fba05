package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yungbote/sitescout-backend/internal/app"
	"github.com/yungbote/sitescout-backend/internal/embedding"
)

func main() {
	var dryRun bool
	var limit int
	flag.BoolVar(&dryRun, "dry-run", false, "list documents pending embedding without calling the API")
	flag.IntVar(&limit, "limit", 200, "max documents listed in dry-run mode")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()

	if dryRun {
		hashes, err := application.Repos.Document.ListEmbeddedHashes(ctx, nil)
		if err != nil {
			fmt.Printf("load embedded hashes: %v\n", err)
			os.Exit(1)
		}
		embedded := make(map[string]struct{}, len(hashes))
		for _, h := range hashes {
			embedded[h] = struct{}{}
		}
		if limit <= 0 {
			limit = 200
		}
		docs, err := application.Repos.Document.ListMissingChunks(ctx, nil, nil, limit)
		if err != nil {
			fmt.Printf("load pending documents: %v\n", err)
			os.Exit(1)
		}
		pending := 0
		deduplicated := 0
		for _, doc := range docs {
			if doc.ContentHash != "" {
				if _, ok := embedded[doc.ContentHash]; ok {
					deduplicated++
					continue
				}
			}
			pending++
			fmt.Printf("[dry-run] embed document_id=%s url=%s text_length=%d\n", doc.ID.String(), doc.URL, doc.TextLength)
		}
		fmt.Printf("done; pending=%d deduplicated=%d\n", pending, deduplicated)
		return
	}

	pipeline, err := embedding.NewPipeline(embedding.PipelineDeps{
		DB:        application.DB,
		Documents: application.Repos.Document,
		Chunks:    application.Repos.Chunk,
		Districts: application.Repos.District,
		AI:        application.Clients.AI,
		Log:       application.Log,
	})
	if err != nil {
		fmt.Printf("build pipeline: %v\n", err)
		os.Exit(1)
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		fmt.Printf("embedding run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("done; embedded=%d deduplicated=%d failed=%d chunks=%d prompt_tokens=%d\n",
		report.DocumentsEmbedded, report.DocumentsDeduplicated, report.DocumentsFailed,
		report.ChunksStored, report.PromptTokens)
}
