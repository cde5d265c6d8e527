package chatevent

import "strings"

const (
	searchMarker = "🔍"
	resultBullet = "•"
)

// Effect is what a single payload does to the turn in progress.
type Effect struct {
	// Append is text to add to the end of the open assistant message.
	Append string

	// Checkpoint, when non-empty, replaces the session continuation token.
	Checkpoint string

	// Done marks the logical end of the turn.
	Done bool
}

// Interpret maps a payload to its effect. Unknown kinds have no effect.
func Interpret(p *Payload) Effect {
	if p == nil {
		return Effect{}
	}

	switch p.Type {
	case KindCheckpoint:
		return Effect{Checkpoint: p.CheckpointID}
	case KindContent:
		return Effect{Append: p.Content}
	case KindSearchStart:
		return Effect{Append: SearchMarker(p.Query)}
	case KindSearchResults:
		return Effect{Append: ResultLinks(p.URLs)}
	case KindEnd:
		return Effect{Done: true}
	default:
		return Effect{}
	}
}

// SearchMarker formats the line shown when the backend starts a web search.
func SearchMarker(query string) string {
	return "\n\n" + searchMarker + " Searching: " + query + "\n"
}

// ResultLinks formats search result URLs as a bulleted list, one per line.
// An empty list still renders the surrounding blank line.
func ResultLinks(urls []string) string {
	lines := make([]string, len(urls))
	for i, u := range urls {
		lines[i] = resultBullet + " " + u
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}
