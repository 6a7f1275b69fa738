package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/searchview"
)

// settleTimeout bounds how long a tool waits for the view to settle.
const settleTimeout = 30 * time.Second

type handlers struct {
	view    View
	prompts Prompter
	engine  query.Engine
}

// viewResult is the settled view plus the prompt that may be blocking it.
type viewResult struct {
	searchview.Snapshot
	Prompt *searchview.Prompt `json:"prompt,omitempty"`
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// optStringArg extracts a string argument, reporting whether it was given.
func optStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

// idArg extracts an optional non-negative integer id. JSON numbers arrive
// as float64.
func idArg(args map[string]any, key string) (uint64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, nil
	}
	v, ok := raw.(float64)
	if !ok || v != math.Trunc(v) || v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return uint64(v), nil
}

// stringsArg extracts a list of strings.
func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%s parameter is required", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// settled waits for the view to settle. A prompt blocks the search it
// belongs to, so the wait ends early when one is pending.
func (h *handlers) settled(ctx context.Context) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	var (
		snap searchview.Snapshot
		err  error
	)
	for {
		wait, waitCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		snap, err = h.view.SettledSnapshot(wait, 0)
		waitCancel()
		if err == nil || ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if _, ok := h.pending(); ok {
			snap, err = h.view.Snapshot(ctx)
			break
		}
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return mcp.NewToolResultError(fmt.Sprintf("view unavailable: %v", err)), nil
	}
	res := viewResult{Snapshot: snap}
	if p, ok := h.pending(); ok {
		res.Prompt = &p
	}
	return jsonResult(res)
}

func (h *handlers) pending() (searchview.Prompt, bool) {
	if h.prompts == nil {
		return searchview.Prompt{}, false
	}
	return h.prompts.Pending()
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	r, err := restriction.Params{
		Category: stringArg(args, "category"),
		Start:    stringArg(args, "start"),
		End:      stringArg(args, "end"),
		Field:    stringArg(args, "field"),
		FolderID: stringArg(args, "folder_id"),
	}.Restriction()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.view.Search(stringArg(args, "query"), r)
	return h.settled(ctx)
}

func (h *handlers) navigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	url := stringArg(args, "url")
	if url == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	if !restriction.InScope(url) {
		return mcp.NewToolResultError(fmt.Sprintf("url %q is not a search url", url)), nil
	}

	h.view.Navigate(url)
	return h.settled(ctx)
}

func (h *handlers) setFilters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	clearDates, _ := args["clear_dates"].(bool)
	startArg, hasStart := optStringArg(args, "start")
	endArg, hasEnd := optStringArg(args, "end")
	field, hasField := optStringArg(args, "field")
	folder, hasFolder := optStringArg(args, "folder_id")

	var start, end *time.Time
	if !clearDates && (hasStart || hasEnd) {
		r, err := restriction.Params{Start: startArg, End: endArg}.Restriction()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		start, end = r.Start, r.End
	}
	if hasField && !restriction.Field(field).Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown field %q", field)), nil
	}

	if !clearDates && (start != nil || end != nil) && (!hasStart || !hasEnd) {
		// Keep the bound the call leaves out.
		cur, err := h.view.Snapshot(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("view unavailable: %v", err)), nil
		}
		if !hasStart {
			start = cur.Filter.Start
		}
		if !hasEnd {
			end = cur.Filter.End
		}
		if start != nil && end != nil && start.After(*end) {
			return mcp.NewToolResultError("start is after the current end"), nil
		}
	}
	if clearDates || start != nil || end != nil {
		h.view.SetDateRange(start, end)
	}
	if hasField {
		h.view.SetField(restriction.Field(field))
	}
	if hasFolder {
		h.view.SetFolder(folder)
	}
	return h.settled(ctx)
}

func (h *handlers) selectResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	ids, err := stringsArg(args, "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	multi, _ := args["multi"].(bool)

	h.view.Select(ids, true, multi)
	return h.settled(ctx)
}

func (h *handlers) getView(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.view.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("view unavailable: %v", err)), nil
	}
	res := viewResult{Snapshot: snap}
	if p, ok := h.pending(); ok {
		res.Prompt = &p
	}
	return jsonResult(res)
}

func (h *handlers) getEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	typ := entity.Type(stringArg(args, "type"))
	if !typ.Searchable() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid type %q", typ)), nil
	}
	id := entity.ID{ListID: stringArg(args, "list_id"), ElementID: stringArg(args, "element_id")}
	if id.ListID == "" || id.ElementID == "" {
		return mcp.NewToolResultError("list_id and element_id are required"), nil
	}

	e, err := h.engine.Load(ctx, typ, id)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("%s %s not found", typ, id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	return jsonResult(e)
}

func (h *handlers) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := h.engine.ListFolders(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list folders failed: %v", err)), nil
	}
	if folders == nil {
		folders = []query.Folder{}
	}
	return jsonResult(folders)
}

func (h *handlers) answerPrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	confirm, ok := args["confirm"].(bool)
	if !ok {
		return mcp.NewToolResultError("confirm parameter is required"), nil
	}
	id, err := idArg(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if h.prompts == nil {
		return mcp.NewToolResultError(searchview.ErrNoPrompt.Error()), nil
	}
	if err := h.prompts.Answer(id, confirm); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.settled(ctx)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
