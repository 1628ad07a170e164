package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// Tools returns the skill retrieval tool set backed by cat. A nil catalogue
// is tolerated; the tools then answer that the manager is not initialized.
func Tools(cat *Catalogue) []agent.Tool {
	return []agent.Tool{
		NewListTool(cat),
		NewSearchTool(cat),
		NewGetTool(cat),
	}
}

const notInitialized = "Error: Skills manager not initialized"

// ListSkillsArgs are the arguments for list_skills. It takes none.
type ListSkillsArgs struct{}

// ListTool lists every available skill with its description.
type ListTool struct {
	cat *Catalogue
}

// NewListTool creates the list_skills tool.
func NewListTool(cat *Catalogue) *ListTool {
	return &ListTool{cat: cat}
}

func (t *ListTool) Name() string { return "list_skills" }

func (t *ListTool) Description() string {
	return "List all available skills with their names and descriptions."
}

func (t *ListTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ListSkillsArgs]()
}

func (t *ListTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	if t.cat == nil {
		return models.ToolError(notInitialized), nil
	}
	list := t.cat.List()
	if len(list) == 0 {
		return models.ToolSuccess("No skills available"), nil
	}
	lines := []string{"Available Skills:"}
	for _, skill := range list {
		lines = append(lines, fmt.Sprintf("- **%s**: %s", skill.Name, skill.Description))
	}
	return models.ToolSuccess(strings.Join(lines, "\n")), nil
}

// SearchSkillsArgs are the arguments for search_skills.
type SearchSkillsArgs struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"Search query matched against skill names and descriptions"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum number of results to return (default 3)"`
}

// SearchTool finds the skills most relevant to a query.
type SearchTool struct {
	cat *Catalogue
}

// NewSearchTool creates the search_skills tool.
func NewSearchTool(cat *Catalogue) *SearchTool {
	return &SearchTool{cat: cat}
}

func (t *SearchTool) Name() string { return "search_skills" }

func (t *SearchTool) Description() string {
	return "Search for skills relevant to a task description, ranked by name and description match."
}

func (t *SearchTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[SearchSkillsArgs]()
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	if t.cat == nil {
		return models.ToolError(notInitialized), nil
	}
	var in SearchSkillsArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	matched := t.cat.Search(in.Query, in.Limit)
	if len(matched) == 0 {
		return models.ToolSuccess(fmt.Sprintf("No skills found matching '%s'", in.Query)), nil
	}
	lines := []string{fmt.Sprintf("Found %d relevant skills:", len(matched))}
	for i, skill := range matched {
		lines = append(lines, fmt.Sprintf("%d. **%s**: %s", i+1, skill.Name, skill.Description))
	}
	return models.ToolSuccess(strings.Join(lines, "\n")), nil
}

// GetSkillArgs are the arguments for get_skill.
type GetSkillArgs struct {
	Name string `json:"name" jsonschema:"required" jsonschema_description:"Name of the skill to fetch"`
}

// GetTool returns a skill's full markdown content.
type GetTool struct {
	cat *Catalogue
}

// NewGetTool creates the get_skill tool.
func NewGetTool(cat *Catalogue) *GetTool {
	return &GetTool{cat: cat}
}

func (t *GetTool) Name() string { return "get_skill" }

func (t *GetTool) Description() string {
	return "Fetch the full content of a skill by name. Follow its instructions to carry out the task."
}

func (t *GetTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[GetSkillArgs]()
}

func (t *GetTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	if t.cat == nil {
		return models.ToolError(notInitialized), nil
	}
	var in GetSkillArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	content, err := t.cat.Content(in.Name)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: Skill '%s' not found", in.Name)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("=== %s ===\n\n%s", in.Name, content)), nil
}
