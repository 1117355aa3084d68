// Package vision provides image recognition clients that turn a fetchable
// image URL into a list of tag strings.
package vision

import "context"

// NoTagsSentinel is the single tag returned when analysis succeeds but
// finds nothing. Callers treat it as a successful result.
const NoTagsSentinel = "no tags"

// Analyzer is the recognition-client contract. Analyze accepts a URL that
// may carry a query-string access token and returns an ordered, non-empty
// list of tags on success.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string) ([]string, error)
}

// normalizeTags applies the empty-analysis sentinel.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{NoTagsSentinel}
	}
	return tags
}
