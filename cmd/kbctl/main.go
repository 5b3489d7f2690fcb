// Package main provides kbctl, the command line client for the
// knowledge engine: ingest, delete, search, ask, status, and bulk
// repository sync.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/config"
	"github.com/relaydesk/knowledge-engine/internal/engine"
	"github.com/relaydesk/knowledge-engine/internal/extract"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/ingest"
	ghsource "github.com/relaydesk/knowledge-engine/internal/source/github"
)

func main() {
	godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "kbctl",
		Short:         "Manage and query the knowledge engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newIngestCmd(&configPath),
		newDeleteCmd(&configPath),
		newSearchCmd(&configPath),
		newAskCmd(&configPath),
		newStatusCmd(&configPath),
		newSyncRepoCmd(&configPath),
	)
	return root
}

// buildEngine assembles an engine for one command invocation.
func buildEngine(ctx context.Context, configPath string) (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return engine.FromConfig(ctx, cfg, logger)
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		docID      string
		sourceType string
		title      string
		category   string
		author     string
		tags       []string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a document from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			if docID == "" {
				docID = ingest.DeriveDocumentID(path)
			}
			if sourceType == "" {
				sourceType = typeForPath(path)
			}
			st, err := extract.ParseSourceType(sourceType)
			if err != nil {
				return err
			}
			if title == "" {
				title = filepath.Base(path)
			}

			eng, err := buildEngine(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Ingest(cmd.Context(), ingest.Request{
				DocumentID: docID,
				Content:    content,
				SourceType: st,
				Meta: ingest.Meta{
					Title:    title,
					Category: category,
					Author:   author,
					Tags:     tags,
				},
			})
			if err != nil {
				return err
			}

			fmt.Printf("Ingested %s: %d chunks (replaced: %v)\n",
				result.DocumentID, result.ChunksWritten, result.Replaced)
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "id", "", "document id (default: derived from path)")
	cmd.Flags().StringVar(&sourceType, "type", "", "source type: text, markdown, structured (default: by extension)")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: file name)")
	cmd.Flags().StringVar(&category, "category", "", "document category")
	cmd.Flags().StringVar(&author, "author", "", "document author")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "document tag (repeatable)")
	return cmd
}

func typeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return string(extract.SourceMarkdown)
	default:
		return string(extract.SourceText)
	}
}

func newDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and all of its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer eng.Close()

			found, err := eng.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("Document %s not found\n", args[0])
				return nil
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		topK     int
		category string
		tags     []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantically search the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer eng.Close()

			results, err := eng.Search(cmd.Context(), strings.Join(args, " "), topK, searchFilter(category, tags))
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(results)
			}
			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [%.3f] %s (%s, chunk %d)\n", i+1, r.Score, r.Title, r.DocumentID, r.ChunkIndex)
				fmt.Printf("   %s\n", excerpt(r.Text))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum results (default: server config)")
	cmd.Flags().StringVar(&category, "category", "", "restrict to category")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "restrict to documents carrying this tag (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newAskCmd(configPath *string) *cobra.Command {
	var (
		category string
		tags     []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question grounded in the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer eng.Close()

			ans, err := eng.Ask(cmd.Context(), strings.Join(args, " "), searchFilter(category, tags))
			if err != nil {
				if !errors.Is(err, answer.ErrProvider) {
					return err
				}
				fmt.Fprintln(os.Stderr, "Warning: answer generation failed, showing sources only")
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(ans)
			}
			fmt.Println(ans.Text)
			if len(ans.Citations) > 0 {
				fmt.Println("\nSources:")
				for i, c := range ans.Citations {
					fmt.Printf("  [%d] %s (%s)\n", i+1, c.DocumentTitle, c.DocumentID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "restrict retrieval to category")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "restrict retrieval to documents carrying this tag (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report index health and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.Health(cmd.Context()); err != nil {
				fmt.Printf("Index: unhealthy (%v)\n", err)
				return nil
			}
			count, err := eng.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Index: healthy, %d chunks\n", count)
			return nil
		},
	}
}

func newSyncRepoCmd(configPath *string) *cobra.Command {
	var (
		owner    string
		repo     string
		basePath string
		category string
		tags     []string
	)

	cmd := &cobra.Command{
		Use:   "sync-repo",
		Short: "Ingest every markdown file from a GitHub repository directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := ghsource.NewClient()
			if err != nil {
				return fmt.Errorf("create github client: %w", err)
			}
			fetcher := ghsource.NewFetcher(client, owner, repo, basePath)

			paths, err := fetcher.List(ctx)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Println("No markdown files found.")
				return nil
			}
			fmt.Printf("Found %d documents in %s/%s\n", len(paths), owner, repo)

			eng, err := buildEngine(ctx, *configPath)
			if err != nil {
				return err
			}
			defer eng.Close()

			var failed int
			for i, path := range paths {
				doc, err := fetcher.Fetch(ctx, path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "fetch %s: %v\n", path, err)
					failed++
					continue
				}

				result, err := eng.Ingest(ctx, ingest.Request{
					DocumentID: ingest.DeriveDocumentID(fmt.Sprintf("%s/%s/%s", owner, repo, path)),
					Content:    doc.Content,
					SourceType: extract.SourceMarkdown,
					Meta: ingest.Meta{
						Title:    path,
						Category: category,
						Tags:     tags,
					},
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "ingest %s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Printf("[%d/%d] %s: %d chunks\n", i+1, len(paths), path, result.ChunksWritten)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&basePath, "path", "", "directory within the repository")
	cmd.Flags().StringVar(&category, "category", "", "category applied to every document")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag applied to every document (repeatable)")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("repo")
	return cmd
}

func searchFilter(category string, tags []string) *index.Filter {
	if category == "" && len(tags) == 0 {
		return nil
	}
	return &index.Filter{Category: category, Tags: tags}
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const maxRunes = 160
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
