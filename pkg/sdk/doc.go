// Package ragdex embeds the ragdex retrieval engine as a Go library.
//
// A Client builds an index and metadata pair from a corpus of Markdown files
// and structured JSON records, and opens persisted pairs for nearest-neighbor search.
//
//	client, _ := ragdex.New(
//	    ragdex.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "", "text-embedding-3-small"),
//	    ragdex.WithChunking(1000, 200),
//	)
//	_, _ = client.Build(ctx, ragdex.BuildRequest{
//	    Dir:       "./docs",
//	    IndexPath: "data/index.bin",
//	    MetaPath:  "data/meta.jsonl",
//	})
//
//	idx, _ := client.Open(ctx, "data/index.bin", "data/meta.jsonl")
//	defer idx.Close()
//	hits, _ := idx.Search(ctx, "how do I rotate keys?", 5)
package ragdex
