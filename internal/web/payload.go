package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/goliatone/go-querysync/cache"
)

// StateElementID is the id of the script element carrying the page state.
const StateElementID = "__QUERY_STATE__"

// ErrNoState is returned when a page carries no state element.
var ErrNoState = errors.New("web: page has no query state")

// EmbedState renders state as JSON that is safe inside a script element.
func EmbedState(state cache.DehydratedState) (template.JS, error) {
	raw, err := cache.MarshalState(state, cache.FormatJSON)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	json.HTMLEscape(&buf, raw)
	return template.JS(buf.String()), nil
}

// ExtractState reads the state embedded in an HTML page.
func ExtractState(r io.Reader) (cache.DehydratedState, error) {
	z := html.NewTokenizer(r)
	inState := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return cache.DehydratedState{}, ErrNoState
			}
			return cache.DehydratedState{}, z.Err()
		case html.StartTagToken:
			tok := z.Token()
			inState = tok.Data == "script" && attr(tok, "id") == StateElementID
		case html.TextToken:
			if !inState {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				return cache.DehydratedState{Queries: []cache.DehydratedQuery{}}, nil
			}
			return cache.UnmarshalState([]byte(text), cache.FormatJSON)
		case html.EndTagToken:
			if inState {
				// an empty element
				return cache.DehydratedState{Queries: []cache.DehydratedQuery{}}, nil
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
