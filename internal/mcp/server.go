// Package mcp exposes the search view as MCP tools over stdio.
package mcp

import (
	"context"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/searchview"
)

// Tool name constants.
const (
	ToolSearch        = "search"
	ToolNavigate      = "navigate"
	ToolSetFilters    = "set_filters"
	ToolSelectResults = "select_results"
	ToolGetView       = "get_view"
	ToolGetEntity     = "get_entity"
	ToolListFolders   = "list_folders"
	ToolAnswerPrompt  = "answer_prompt"
)

// View is the part of the search view the tools drive.
type View interface {
	Navigate(url string)
	Search(text string, r restriction.Restriction)
	SetDateRange(start, end *time.Time)
	SetField(f restriction.Field)
	SetFolder(listID string)
	Select(elementIDs []string, clicked, multi bool)
	Snapshot(ctx context.Context) (searchview.Snapshot, error)
	SettledSnapshot(ctx context.Context, interval time.Duration) (searchview.Snapshot, error)
}

// Prompter exposes the pending confirmation question.
type Prompter interface {
	Pending() (searchview.Prompt, bool)
	Answer(id uint64, ok bool) error
}

// Deps are the collaborators behind the tools. Prompts may be nil.
type Deps struct {
	View    View
	Prompts Prompter
	Engine  query.Engine
}

// Common argument helpers for recurring tool option definitions.

func withStart() mcp.ToolOption {
	return mcp.WithString("start",
		mcp.Description("Only mail received on or after this day (YYYY-MM-DD)"),
	)
}

func withEnd() mcp.ToolOption {
	return mcp.WithString("end",
		mcp.Description("Only mail received on or before this day (YYYY-MM-DD)"),
	)
}

func withField() mcp.ToolOption {
	return mcp.WithString("field",
		mcp.Description("Limit mail search to one field; empty searches all"),
		mcp.Enum("", "subject", "body", "from", "to"),
	)
}

func withFolder() mcp.ToolOption {
	return mcp.WithString("folder_id",
		mcp.Description("List id of the mail folder to search; empty searches all folders"),
	)
}

// NewServer creates an MCP server with the search view tools.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"vaultsearch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{view: deps.View, prompts: deps.Prompts, engine: deps.Engine}

	s.AddTool(searchTool(), h.search)
	s.AddTool(navigateTool(), h.navigate)
	s.AddTool(setFiltersTool(), h.setFilters)
	s.AddTool(selectResultsTool(), h.selectResults)
	s.AddTool(getViewTool(), h.getView)
	s.AddTool(getEntityTool(), h.getEntity)
	s.AddTool(listFoldersTool(), h.listFolders)
	s.AddTool(answerPromptTool(), h.answerPrompt)
	return s
}

// Serve serves the search view tools over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, deps Deps) error {
	stdio := server.NewStdioServer(NewServer(deps))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchTool() mcp.Tool {
	return mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search mail or contacts and return the settled view: results, selection, filter state and index coverage. Mail older than the indexed range may trigger a confirmation prompt; see answer_prompt."),
		mcp.WithString("query",
			mcp.Description("Free text to search for"),
		),
		mcp.WithString("category",
			mcp.Description("What to search (default mail)"),
			mcp.Enum("mail", "contact"),
		),
		withStart(),
		withEnd(),
		withField(),
		withFolder(),
	)
}

func navigateTool() mcp.Tool {
	return mcp.NewTool(ToolNavigate,
		mcp.WithDescription("Navigate the search view to a URL such as /search/mail?query=invoice&start=1700000000000 and return the settled view."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Search URL; the path selects the category, parameters the restriction and selected id"),
		),
	)
}

func setFiltersTool() mcp.Tool {
	return mcp.NewTool(ToolSetFilters,
		mcp.WithDescription("Edit the mail filters as a user would and return the settled view. Omitted filters keep their value."),
		withStart(),
		withEnd(),
		mcp.WithBoolean("clear_dates",
			mcp.Description("Remove the date range"),
		),
		withField(),
		withFolder(),
	)
}

func selectResultsTool() mcp.Tool {
	return mcp.NewTool(ToolSelectResults,
		mcp.WithDescription("Select results by element id. A single selection opens the entity in the detail pane."),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Element ids of the results to select"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("multi",
			mcp.Description("Multi-select mode"),
		),
	)
}

func getViewTool() mcp.Tool {
	return mcp.NewTool(ToolGetView,
		mcp.WithDescription("Get the current search view and any pending confirmation prompt."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getEntityTool() mcp.Tool {
	return mcp.NewTool(ToolGetEntity,
		mcp.WithDescription("Load a mail or contact by id."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Enum("mail", "contact"),
		),
		mcp.WithString("list_id",
			mcp.Required(),
			mcp.Description("List id of the folder or contact list"),
		),
		mcp.WithString("element_id",
			mcp.Required(),
		),
	)
}

func listFoldersTool() mcp.Tool {
	return mcp.NewTool(ToolListFolders,
		mcp.WithDescription("List mail folders usable as folder_id filters."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func answerPromptTool() mcp.Tool {
	return mcp.NewTool(ToolAnswerPrompt,
		mcp.WithDescription("Answer the pending confirmation prompt, such as whether to index older mail, and return the settled view."),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("true to accept, false to decline"),
		),
		mcp.WithNumber("id",
			mcp.Description("Prompt id from get_view; omit to answer whatever is pending"),
		),
	)
}
