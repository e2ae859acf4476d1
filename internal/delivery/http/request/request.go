package request

// SubmitScrapeRequest is the body of POST /api/scrape.
type SubmitScrapeRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}
