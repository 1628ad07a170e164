// Package skills loads reusable task playbooks from a skills directory and
// serves them to the agent: a summary for the system prompt, word-overlap
// search, and lazy full-content loading for get_skill.
package skills

// Skill is one entry of the catalogue. Name and Description come from the
// SKILL.md frontmatter; Content is the raw file text, loaded on first use.
type Skill struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// Content is the full SKILL.md text (lazy loaded).
	Content string `json:"-" yaml:"-"`

	// Path is the skill's directory.
	Path string `json:"path" yaml:"-"`
}
