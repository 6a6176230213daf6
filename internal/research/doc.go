// Package research implements the external research collaborators of the
// pipeline: a news search API, a deep research API returning full-text
// results, and a crawler that turns web pages into markdown.
//
// Every client returns domain.Source values with Provider set and ID empty;
// the workflow assigns IDs when it merges results. Failures surface as
// *domain.ExternalAPIError or *domain.RateLimitError so the activity layer can
// classify them.
package research
