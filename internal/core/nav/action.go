package nav

import "fmt"

// ActionKind tags the Action variant.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionSearch   ActionKind = "search"
	ActionClick    ActionKind = "click"
	ActionScroll   ActionKind = "scroll"
	ActionWaitFor  ActionKind = "wait_for"
	ActionExtract  ActionKind = "extract"
)

// Action is one browser step chosen by the planner. Which fields are set
// depends on Kind:
//
//	Navigate: URL, optionally Dismiss
//	Search:   Text plus Selector (input to fill) or URL (prebuilt search page)
//	Click:    Selector and Index of the target, Text as its description, URL as href
//	WaitFor:  Selector
//	Scroll, Extract: nothing
type Action struct {
	Kind     ActionKind `json:"kind"`
	URL      string     `json:"url,omitempty"`
	Text     string     `json:"text,omitempty"`
	Selector string     `json:"selector,omitempty"`
	Index    int        `json:"index,omitempty"`
	Dismiss  []string   `json:"dismiss,omitempty"`
}

func Navigate(url string, dismiss ...string) Action {
	return Action{Kind: ActionNavigate, URL: url, Dismiss: dismiss}
}

func Search(text, inputSelector, searchURL string) Action {
	return Action{Kind: ActionSearch, Text: text, Selector: inputSelector, URL: searchURL}
}

func Click(selector string, index int, text, href string) Action {
	return Action{Kind: ActionClick, Selector: selector, Index: index, Text: text, URL: href}
}

func Scroll() Action { return Action{Kind: ActionScroll} }

func WaitFor(selector string) Action { return Action{Kind: ActionWaitFor, Selector: selector} }

func Extract() Action { return Action{Kind: ActionExtract} }

// Validate checks that the fields required by the kind are present.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionNavigate:
		if a.URL == "" {
			return fmt.Errorf("navigate: url required")
		}
	case ActionSearch:
		if a.Text == "" || (a.Selector == "" && a.URL == "") {
			return fmt.Errorf("search: text and an input selector or search url required")
		}
	case ActionClick:
		if a.Selector == "" && a.URL == "" {
			return fmt.Errorf("click: selector or url required")
		}
	case ActionWaitFor:
		if a.Selector == "" {
			return fmt.Errorf("wait_for: selector required")
		}
	case ActionScroll, ActionExtract:
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

func (a Action) String() string {
	switch a.Kind {
	case ActionNavigate:
		return "navigate " + a.URL
	case ActionSearch:
		return fmt.Sprintf("search %q", a.Text)
	case ActionClick:
		return fmt.Sprintf("click %q", a.Text)
	case ActionWaitFor:
		return "wait_for " + a.Selector
	default:
		return string(a.Kind)
	}
}
