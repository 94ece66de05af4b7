// Package scripting evaluates the JavaScript carried by annotation
// action dictionaries (/S /JavaScript with a /JS string).
package scripting

import (
	"context"
	"errors"

	"github.com/markpdf/cos/object"
)

// Engine runs a script and returns its exported result.
type Engine interface {
	Execute(ctx context.Context, script string) (interface{}, error)
}

// Host receives the side effects a script may trigger.
type Host interface {
	Alert(msg string)
}

var ErrNotJavaScript = errors.New("scripting: action is not a JavaScript action")

// ActionScript extracts the script from a /JavaScript action dict. The
// /JS value may be a literal string, a hex string, or (in larger
// documents) an indirect reference already materialized by the caller.
func ActionScript(action *object.Dict) (string, error) {
	if action == nil {
		return "", ErrNotJavaScript
	}
	if s, ok := action.NameValue("S"); !ok || s != "JavaScript" {
		return "", ErrNotJavaScript
	}
	js, ok := action.TextValue("JS")
	if !ok {
		return "", ErrNotJavaScript
	}
	return js, nil
}

// RunAction evaluates the script of a /JavaScript action dict.
func RunAction(ctx context.Context, e Engine, action *object.Dict) (interface{}, error) {
	js, err := ActionScript(action)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, js)
}
