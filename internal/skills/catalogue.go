package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Catalogue indexes the skills found under a root directory. Each skill is a
// subdirectory holding a SKILL.md; only frontmatter is kept resident, the
// body loads on first Content request.
type Catalogue struct {
	root   string
	logger *slog.Logger

	skillsMu sync.RWMutex
	skills   map[string]*Skill

	watcher       *fsnotify.Watcher
	watchPaths    map[string]struct{}
	watchMu       sync.Mutex
	watchWg       sync.WaitGroup
	watchCancel   context.CancelFunc
	watchDebounce time.Duration
}

// NewCatalogue builds a catalogue rooted at dir. Call Discover before use.
func NewCatalogue(dir string, logger *slog.Logger) *Catalogue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalogue{
		root:          dir,
		logger:        logger.With("component", "skills"),
		skills:        make(map[string]*Skill),
		watchDebounce: 250 * time.Millisecond,
	}
}

// Root returns the catalogue's skills directory.
func (c *Catalogue) Root() string {
	return c.root
}

// Discover rescans the root directory and replaces the catalogue. A missing
// root is not an error; the catalogue is simply empty.
func (c *Catalogue) Discover() error {
	found := make(map[string]*Skill)

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			c.replaceSkills(found)
			return nil
		}
		return fmt.Errorf("read skills dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillFile := filepath.Join(c.root, entry.Name(), SkillFilename)
		skill, err := ParseSkillFile(skillFile)
		if err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warn("skipping skill", "dir", entry.Name(), "error", err)
			}
			continue
		}
		// Keep the catalogue light; the body reloads on demand.
		skill.Content = ""
		found[skill.Name] = skill
	}

	c.replaceSkills(found)
	c.logger.Info("discovered skills", "count", len(found))

	if err := c.refreshWatches(); err != nil {
		c.logger.Warn("refresh skill watches failed", "error", err)
	}
	return nil
}

func (c *Catalogue) replaceSkills(skills map[string]*Skill) {
	c.skillsMu.Lock()
	c.skills = skills
	c.skillsMu.Unlock()
}

// Get returns a skill by name.
func (c *Catalogue) Get(name string) (*Skill, bool) {
	c.skillsMu.RLock()
	defer c.skillsMu.RUnlock()
	skill, ok := c.skills[name]
	return skill, ok
}

// List returns all skills sorted by name.
func (c *Catalogue) List() []*Skill {
	c.skillsMu.RLock()
	defer c.skillsMu.RUnlock()

	result := make([]*Skill, 0, len(c.skills))
	for _, skill := range c.skills {
		result = append(result, skill)
	}
	sortSkills(result)
	return result
}

// Count returns the number of catalogued skills.
func (c *Catalogue) Count() int {
	c.skillsMu.RLock()
	defer c.skillsMu.RUnlock()
	return len(c.skills)
}

// Summary renders one "- name: description" line per skill for the system
// prompt. Empty when the catalogue is empty.
func (c *Catalogue) Summary() string {
	skills := c.List()
	if len(skills) == 0 {
		return ""
	}
	lines := make([]string, 0, len(skills))
	for _, skill := range skills {
		lines = append(lines, fmt.Sprintf("- %s: %s", skill.Name, skill.Description))
	}
	return strings.Join(lines, "\n")
}

// Search returns up to limit skills relevant to query, best match first.
// Limit defaults to 3 when zero or negative.
func (c *Catalogue) Search(query string, limit int) []*Skill {
	if limit <= 0 {
		limit = 3
	}
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	type match struct {
		skill *Skill
		score float64
	}
	var matches []match
	for _, skill := range c.List() {
		score := relevance(skill, queryLower, queryWords)
		if score > 0.3 {
			matches = append(matches, match{skill, score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]*Skill, len(matches))
	for i, m := range matches {
		result[i] = m.skill
	}
	return result
}

// relevance scores a skill against the query: substring hits on the name
// outrank word hits, and name hits outrank description hits.
func relevance(skill *Skill, queryLower string, queryWords []string) float64 {
	score := 0.0

	nameLower := strings.ToLower(skill.Name)
	if queryLower != "" && strings.Contains(nameLower, queryLower) {
		score = max(score, 0.8)
	} else if anyWordIn(nameLower, queryWords) {
		score = max(score, 0.5)
	}

	descLower := strings.ToLower(skill.Description)
	if queryLower != "" && strings.Contains(descLower, queryLower) {
		score = max(score, 0.6)
	} else if anyWordIn(descLower, queryWords) {
		score = max(score, 0.3)
	}

	return score
}

func anyWordIn(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

// Content returns the full SKILL.md text for a skill, loading and caching it
// on first request.
func (c *Catalogue) Content(name string) (string, error) {
	skill, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("skill not found: %s", name)
	}

	c.skillsMu.RLock()
	cached := skill.Content
	c.skillsMu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	parsed, err := ParseSkillFile(filepath.Join(skill.Path, SkillFilename))
	if err != nil {
		return "", fmt.Errorf("parse skill file: %w", err)
	}

	c.skillsMu.Lock()
	skill.Content = parsed.Content
	c.skillsMu.Unlock()

	return parsed.Content, nil
}

// StartWatching begins watching the skills tree and re-discovers on changes.
func (c *Catalogue) StartWatching(ctx context.Context) error {
	c.watchMu.Lock()
	if c.watcher != nil {
		c.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.watchMu.Unlock()
		return err
	}
	c.watcher = watcher
	if c.watchPaths == nil {
		c.watchPaths = make(map[string]struct{})
	}
	watchCtx, cancel := context.WithCancel(ctx)
	c.watchCancel = cancel
	debounce := c.watchDebounce
	c.watchMu.Unlock()

	if err := c.refreshWatches(); err != nil {
		c.logger.Warn("initial skill watch refresh failed", "error", err)
	}

	c.watchWg.Add(1)
	go c.watchLoop(watchCtx, debounce)
	return nil
}

// Close stops any active watcher.
func (c *Catalogue) Close() error {
	c.watchMu.Lock()
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	watcher := c.watcher
	c.watcher = nil
	c.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	c.watchWg.Wait()
	return nil
}

func (c *Catalogue) watchLoop(ctx context.Context, debounce time.Duration) {
	defer c.watchWg.Done()
	c.watchMu.Lock()
	watcher := c.watcher
	c.watchMu.Unlock()
	if watcher == nil {
		return
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleRefresh := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if err := c.Discover(); err != nil {
				c.logger.Warn("skill discovery failed during watch refresh", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = c.addWatchPath(event.Name)
					}
				}
				scheduleRefresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("skill watch error", "error", err)
		}
	}
}

func (c *Catalogue) refreshWatches() error {
	c.watchMu.Lock()
	watcher := c.watcher
	c.watchMu.Unlock()
	if watcher == nil {
		return nil
	}

	desired := c.computeWatchPaths()
	desiredSet := make(map[string]struct{}, len(desired))
	for _, path := range desired {
		desiredSet[path] = struct{}{}
	}

	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	for path := range desiredSet {
		if _, ok := c.watchPaths[path]; ok {
			continue
		}
		if err := watcher.Add(path); err != nil {
			c.logger.Debug("failed to watch skills path", "path", path, "error", err)
			continue
		}
		c.watchPaths[path] = struct{}{}
	}

	for path := range c.watchPaths {
		if _, ok := desiredSet[path]; ok {
			continue
		}
		if err := watcher.Remove(path); err != nil {
			c.logger.Debug("failed to unwatch skills path", "path", path, "error", err)
		}
		delete(c.watchPaths, path)
	}

	return nil
}

func (c *Catalogue) addWatchPath(path string) error {
	cleaned, ok := normalizeWatchPath(path)
	if !ok {
		return nil
	}
	c.watchMu.Lock()
	watcher := c.watcher
	if watcher == nil {
		c.watchMu.Unlock()
		return nil
	}
	if _, exists := c.watchPaths[cleaned]; exists {
		c.watchMu.Unlock()
		return nil
	}
	c.watchMu.Unlock()

	if err := watcher.Add(cleaned); err != nil {
		return err
	}

	c.watchMu.Lock()
	c.watchPaths[cleaned] = struct{}{}
	c.watchMu.Unlock()
	return nil
}

func (c *Catalogue) computeWatchPaths() []string {
	paths := make(map[string]struct{})
	if cleaned, ok := normalizeWatchPath(c.root); ok {
		paths[cleaned] = struct{}{}
	}
	c.skillsMu.RLock()
	for _, skill := range c.skills {
		if cleaned, ok := normalizeWatchPath(skill.Path); ok {
			paths[cleaned] = struct{}{}
		}
	}
	c.skillsMu.RUnlock()

	result := make([]string, 0, len(paths))
	for path := range paths {
		result = append(result, path)
	}
	sort.Strings(result)
	return result
}

func normalizeWatchPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return filepath.Clean(path), true
}

func sortSkills(skills []*Skill) {
	sort.Slice(skills, func(i, j int) bool {
		return skills[i].Name < skills[j].Name
	})
}
