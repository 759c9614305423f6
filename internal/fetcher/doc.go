// Package fetcher loads an activity page and extracts the fields used to
// decide availability.
//
// The main components are:
//
//   - [BrowserFetcher]: Renders a page in headless Chrome via chromedp,
//     waits a fixed settle delay, then reads the rendered text
//   - [HTTPFetcher]: Loads a page with a bounded navigation timeout and
//     evaluates the static document with goquery
//   - [ExtractFields]: Pure interpretation of page text into [Fields]
//   - [ParseOpenings]: Parses "<N> openings remaining"
//
// Load failures are reported as errors wrapping [ErrTimeout] or
// [ErrNavigation]; a missing openings phrase is not an error.
package fetcher
