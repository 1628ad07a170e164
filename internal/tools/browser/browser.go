// Package browser implements the browser_action tool on a headless Chrome
// driven over the DevTools protocol. One session per tool instance survives
// across calls until the model closes it or the registry shuts down.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// Tools returns the browser tool set bound to one session's context.
func Tools(tc *agent.ToolContext) []agent.Tool {
	return []agent.Tool{NewActionTool(tc)}
}

// ActionArgs are the arguments for browser_action.
type ActionArgs struct {
	Action     string `json:"action" jsonschema:"required,enum=launch,enum=click,enum=hover,enum=type,enum=press,enum=scroll_down,enum=scroll_up,enum=resize,enum=close,enum=screenshot" jsonschema_description:"Browser action to perform"`
	URL        string `json:"url,omitempty" jsonschema_description:"URL to open when performing the launch action; must include protocol"`
	Coordinate string `json:"coordinate,omitempty" jsonschema_description:"Screen coordinate for hover or click actions in format 'x,y@WIDTHxHEIGHT' where x,y is the target position on the screenshot image and WIDTHxHEIGHT is the exact pixel dimensions of the screenshot image (not the browser viewport). Example: '450,203@900x600'. The coordinates are automatically scaled to match the actual viewport dimensions."`
	Size       string `json:"size,omitempty" jsonschema_description:"Viewport dimensions for the resize action in format 'WIDTHxHEIGHT' or 'WIDTH,HEIGHT'. Example: '1280x800' or '1280,800'"`
	Text       string `json:"text,omitempty" jsonschema_description:"Text to type when performing the type action, or key name to press when performing the press action (e.g., 'Enter', 'Tab', 'Escape')"`
	Path       string `json:"path,omitempty" jsonschema_description:"File path where the screenshot should be saved (relative to workspace). Required for screenshot action. Supports .png, .jpeg, and .webp extensions."`
}

// ActionTool is the browser_action tool. It owns the browser session and
// implements io.Closer so the registry tears Chrome down with the runtime.
type ActionTool struct {
	tc      *agent.ToolContext
	session *Session
}

// NewActionTool creates the browser_action tool with a fresh session.
func NewActionTool(tc *agent.ToolContext) *ActionTool {
	return &ActionTool{tc: tc, session: NewSession()}
}

func (t *ActionTool) Name() string { return "browser_action" }

func (t *ActionTool) Description() string {
	return "Control a headless browser: launch to open a URL, then click, hover, type, press, scroll_down, scroll_up, resize, screenshot, and close. The session stays open across tool calls until closed."
}

func (t *ActionTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ActionArgs]()
}

// Close shuts down the browser session.
func (t *ActionTool) Close() error {
	return t.session.Close()
}

func (t *ActionTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in ActionArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	if in.Action == "launch" {
		return t.launch(in)
	}
	if !t.session.Active() {
		return models.ToolError("Error: Browser not running. Use 'launch' first."), nil
	}

	switch in.Action {
	case "close":
		if err := t.session.Close(); err != nil {
			return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
		}
		return models.ToolSuccess("Browser closed"), nil
	case "click":
		return t.pointerAction(in, "Click", func(x, y float64) chromedp.Action {
			return chromedp.MouseClickXY(x, y)
		})
	case "hover":
		return t.pointerAction(in, "Hover", func(x, y float64) chromedp.Action {
			return chromedp.ActionFunc(func(ctx context.Context) error {
				return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
			})
		})
	case "type":
		if in.Text == "" {
			return models.ToolError("Error: Type action requires text"), nil
		}
		return t.run(in.Action, chromedp.KeyEvent(in.Text))
	case "press":
		if in.Text == "" {
			return models.ToolError("Error: Press action requires key name"), nil
		}
		return t.run(in.Action, chromedp.KeyEvent(resolveKey(in.Text)))
	case "scroll_down":
		return t.run(in.Action, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil))
	case "scroll_up":
		return t.run(in.Action, chromedp.Evaluate(`window.scrollBy(0, -window.innerHeight)`, nil))
	case "resize":
		if in.Size == "" {
			return models.ToolError("Error: Resize action requires size"), nil
		}
		w, h, err := parseSize(in.Size)
		if err != nil {
			return models.ToolError("Error: Invalid size format"), nil
		}
		return t.run(in.Action, chromedp.EmulateViewport(int64(w), int64(h)))
	case "screenshot":
		return t.screenshot(in)
	default:
		return models.ToolError(fmt.Sprintf("Error: Unknown action: %s", in.Action)), nil
	}
}

func (t *ActionTool) launch(in ActionArgs) (*models.ToolResult, error) {
	if err := t.session.Launch(); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}
	if in.URL == "" {
		return models.ToolSuccess("Browser launched"), nil
	}
	if err := t.session.Run(chromedp.Navigate(in.URL)); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Browser launched and visited %s", in.URL)), nil
}

// pointerAction parses the coordinate, scales it from screenshot space to
// the live viewport, and dispatches the mouse action at the scaled point.
func (t *ActionTool) pointerAction(in ActionArgs, verb string, build func(x, y float64) chromedp.Action) (*models.ToolResult, error) {
	if in.Coordinate == "" {
		return models.ToolError(fmt.Sprintf("Error: %s action requires coordinate", verb)), nil
	}
	x, y, imgW, imgH, err := parseCoordinate(in.Coordinate)
	if err != nil {
		return models.ToolError("Error: Invalid coordinate format"), nil
	}

	var viewport []int
	if err := t.session.Run(chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &viewport)); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}
	var vpW, vpH int
	if len(viewport) == 2 {
		vpW, vpH = viewport[0], viewport[1]
	}

	sx, sy := scalePoint(x, y, imgW, imgH, vpW, vpH)
	return t.run(in.Action, build(sx, sy))
}

func (t *ActionTool) screenshot(in ActionArgs) (*models.ToolResult, error) {
	if in.Path == "" {
		return models.ToolError("Error: Screenshot action requires path"), nil
	}
	target, err := t.tc.Resolver().Resolve(in.Path)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}

	format := screenshotFormat(target)
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := page.CaptureScreenshot().WithFormat(format).Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	})
	if err := t.session.Run(capture); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}
	if err := os.WriteFile(target, buf, 0o644); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Screenshot saved to %s", in.Path)), nil
}

func (t *ActionTool) run(action string, actions ...chromedp.Action) (*models.ToolResult, error) {
	if err := t.session.Run(actions...); err != nil {
		return models.ToolError(fmt.Sprintf("Browser action failed: %v", err)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Successfully executed: %s", action)), nil
}

func screenshotFormat(path string) page.CaptureScreenshotFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return page.CaptureScreenshotFormatJpeg
	case ".webp":
		return page.CaptureScreenshotFormatWebp
	default:
		return page.CaptureScreenshotFormatPng
	}
}

// keyNames maps the key names the model uses to DevTools key codes.
// Unmapped names fall through as literal keystrokes.
var keyNames = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

func resolveKey(name string) string {
	if key, ok := keyNames[name]; ok {
		return key
	}
	return name
}
