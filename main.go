// mwclient MCP server - exposes a stateful MediaWiki API session over the
// Model Context Protocol: reads, paginated listings, and throttled writes.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/olavsk/mwclient/metrics"
	"github.com/olavsk/mwclient/tracing"
	"github.com/olavsk/mwclient/wiki"
)

// recoverPanic wraps a tool handler with panic recovery so one bad response
// cannot take the server down
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		metrics.PanicsRecovered.WithLabelValues(operation).Inc()
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

const (
	ServerName    = "mwclient"
	ServerVersion = "1.0.0"
)

func main() {
	// Configure logging to stderr (stdout is used for MCP protocol)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	// Load configuration from environment
	config, err := wiki.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := wiki.NewClient(config, logger)
	if config.HasCredentials() {
		if err := client.Login(ctx, config.Username, config.Password); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger: logger,
		Instructions: `mwclient provides tools for reading and editing a MediaWiki wiki
through a managed session with throttling and replication-lag awareness.

Available tools:
- wiki_get_page: Get the wikitext of a page
- wiki_get_category_members: List pages in a category
- wiki_get_contributions: List a user's edits
- wiki_get_recent_changes: Get the recent changes feed
- wiki_get_log_events: Query the public logs (moves, blocks, protections)
- wiki_get_backlinks: Get pages linking to a page ("What links here")
- wiki_edit_page: Create or edit a page (requires authentication)

Configure via environment variables:
- WIKI_API_URL: Wiki API URL (e.g., https://wiki.example.com/w/api.php)
- WIKI_USERNAME: Bot username (for editing)
- WIKI_PASSWORD: Bot password (for editing)`,
	})

	registerTools(server, client, logger)

	logger.Info("Starting wiki MCP server",
		"name", ServerName,
		"version", ServerVersion,
		"wiki_url", config.BaseURL,
	)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// GetPageArgs identifies a page to read.
type GetPageArgs struct {
	Title string `json:"title" jsonschema:"Page title"`
	// Section, when set, returns only that section of the page.
	Section *int `json:"section,omitempty" jsonschema:"Optional section number"`
}

// PageContent is the wikitext of a page.
type PageContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CategoryMembersToolArgs identifies a category listing.
type CategoryMembersToolArgs struct {
	Category string `json:"category" jsonschema:"Category name, with or without the Category: prefix"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results, 0 for all"`
}

// TitlesResult is a list of page titles.
type TitlesResult struct {
	Titles []string `json:"titles"`
}

// ContributionsToolArgs identifies a user's contributions listing.
type ContributionsToolArgs struct {
	User  string `json:"user" jsonschema:"Account name"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results, 0 for all"`
}

// RevisionsResult is a list of revisions.
type RevisionsResult struct {
	Revisions []wiki.Revision `json:"revisions"`
}

// RecentChangesToolArgs filters the recent changes feed.
type RecentChangesToolArgs struct {
	Namespace *int `json:"namespace,omitempty" jsonschema:"Restrict to one namespace"`
	ShowBots  bool `json:"show_bots,omitempty" jsonschema:"Include bot edits"`
	Limit     int  `json:"limit,omitempty" jsonschema:"Maximum results, 0 for all"`
}

// LogEventsToolArgs filters the public log listing.
type LogEventsToolArgs struct {
	Type  string `json:"type,omitempty" jsonschema:"Log type: move, block, protect, delete, upload"`
	User  string `json:"user,omitempty" jsonschema:"Restrict to entries by this user"`
	Title string `json:"title,omitempty" jsonschema:"Restrict to entries about this page"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results, 0 for all"`
}

// LogEventsResult is a list of log entries.
type LogEventsResult struct {
	Entries []wiki.LogEntry `json:"entries"`
}

// BacklinksToolArgs identifies a backlinks listing.
type BacklinksToolArgs struct {
	Title string `json:"title" jsonschema:"Page title"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results, 0 for all"`
}

// EditPageArgs describes an edit.
type EditPageArgs struct {
	Title   string `json:"title" jsonschema:"Page title"`
	Text    string `json:"text" jsonschema:"New page text (replaces current content)"`
	Summary string `json:"summary,omitempty" jsonschema:"Edit summary"`
	Minor   bool   `json:"minor,omitempty" jsonschema:"Mark the edit as minor"`
}

// EditResult reports the outcome of an edit.
type EditResult struct {
	Title  string `json:"title"`
	Edited bool   `json:"edited"`
}

func registerTools(server *mcp.Server, client *wiki.Client, logger *slog.Logger) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_page",
		Description: "Retrieve the wikitext of a page, or of one section of it.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Page",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetPageArgs) (*mcp.CallToolResult, PageContent, error) {
		defer recoverPanic(logger, "wiki_get_page")
		var (
			text string
			err  error
		)
		if args.Section != nil {
			text, err = client.GetSectionText(ctx, args.Title, *args.Section)
		} else {
			text, err = client.GetPageText(ctx, args.Title)
		}
		metrics.RecordToolCall("wiki_get_page", err == nil)
		if err != nil {
			return nil, PageContent{}, fmt.Errorf("failed to get page: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_get_page",
			"title", args.Title,
			"output_chars", len(text),
		)
		return nil, PageContent{Title: args.Title, Content: text}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_category_members",
		Description: "List the pages in a category. Follows continuation transparently.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Category Members",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CategoryMembersToolArgs) (*mcp.CallToolResult, TitlesResult, error) {
		defer recoverPanic(logger, "wiki_get_category_members")
		titles, err := client.CategoryMembers(ctx, wiki.CategoryMembersArgs{
			Category: args.Category,
			Limit:    args.Limit,
		})
		metrics.RecordToolCall("wiki_get_category_members", err == nil)
		if err != nil {
			return nil, TitlesResult{}, fmt.Errorf("failed to list category members: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_get_category_members",
			"category", args.Category,
			"results_count", len(titles),
		)
		return nil, TitlesResult{Titles: titles}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_contributions",
		Description: "List a user's edits, newest first.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "User Contributions",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ContributionsToolArgs) (*mcp.CallToolResult, RevisionsResult, error) {
		defer recoverPanic(logger, "wiki_get_contributions")
		revs, err := client.Contributions(ctx, wiki.ContributionsArgs{
			User:  args.User,
			Limit: args.Limit,
		})
		metrics.RecordToolCall("wiki_get_contributions", err == nil)
		if err != nil {
			return nil, RevisionsResult{}, fmt.Errorf("failed to list contributions: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_get_contributions",
			"user", args.User,
			"results_count", len(revs),
		)
		return nil, RevisionsResult{Revisions: revs}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_recent_changes",
		Description: "Get the wiki's recent changes feed, newest first. Bot edits hidden unless show_bots is set.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Recent Changes",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RecentChangesToolArgs) (*mcp.CallToolResult, RevisionsResult, error) {
		defer recoverPanic(logger, "wiki_get_recent_changes")
		ns := -1
		if args.Namespace != nil {
			ns = *args.Namespace
		}
		revs, err := client.RecentChanges(ctx, wiki.RecentChangesArgs{
			Namespace: ns,
			ShowBots:  args.ShowBots,
			Limit:     args.Limit,
		})
		metrics.RecordToolCall("wiki_get_recent_changes", err == nil)
		if err != nil {
			return nil, RevisionsResult{}, fmt.Errorf("failed to get recent changes: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_get_recent_changes",
			"results_count", len(revs),
		)
		return nil, RevisionsResult{Revisions: revs}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_log_events",
		Description: "Query the wiki's public logs: moves, deletions, blocks, protections, uploads.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Log Events",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args LogEventsToolArgs) (*mcp.CallToolResult, LogEventsResult, error) {
		defer recoverPanic(logger, "wiki_get_log_events")
		entries, err := client.LogEntries(ctx, wiki.LogEntriesArgs{
			Type:  args.Type,
			User:  args.User,
			Title: args.Title,
			Limit: args.Limit,
		})
		metrics.RecordToolCall("wiki_get_log_events", err == nil)
		if err != nil {
			return nil, LogEventsResult{}, fmt.Errorf("failed to query logs: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_get_log_events",
			"type", args.Type,
			"results_count", len(entries),
		)
		return nil, LogEventsResult{Entries: entries}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_backlinks",
		Description: "Get pages linking to a page (\"What links here\").",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Backlinks",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args BacklinksToolArgs) (*mcp.CallToolResult, TitlesResult, error) {
		defer recoverPanic(logger, "wiki_get_backlinks")
		titles, err := client.WhatLinksHere(ctx, args.Title, args.Limit)
		metrics.RecordToolCall("wiki_get_backlinks", err == nil)
		if err != nil {
			return nil, TitlesResult{}, fmt.Errorf("failed to get backlinks: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_get_backlinks",
			"title", args.Title,
			"results_count", len(titles),
		)
		return nil, TitlesResult{Titles: titles}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_edit_page",
		Description: "Create or replace the text of a page. Runs through the write pipeline: token fetch, permission check, throttle.",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Edit Page",
			DestructiveHint: ptr(true),
			OpenWorldHint:   ptr(true),
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EditPageArgs) (*mcp.CallToolResult, EditResult, error) {
		defer recoverPanic(logger, "wiki_edit_page")
		err := client.Edit(ctx, wiki.EditArgs{
			Title:   args.Title,
			Text:    args.Text,
			Summary: args.Summary,
			Minor:   args.Minor,
		})
		metrics.RecordToolCall("wiki_edit_page", err == nil)
		if err != nil {
			return nil, EditResult{}, fmt.Errorf("edit failed: %w", err)
		}
		logger.Info("Tool executed",
			"tool", "wiki_edit_page",
			"title", args.Title,
			"input_chars", len(args.Text),
		)
		return nil, EditResult{Title: args.Title, Edited: true}, nil
	})
}

// ptr returns a pointer to v, for optional MCP annotation fields
func ptr[T any](v T) *T {
	return &v
}
