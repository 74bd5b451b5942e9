package schemas

// -- Discovery Collaborator --

// DiscoverRequest is the body sent to the contact-page discovery service.
type DiscoverRequest struct {
	RootURL         string `json:"root_url"`
	TopN            int    `json:"top_n"`
	FetchLimit      int    `json:"fetch_limit,omitempty"`
	Concurrency     int    `json:"concurrency,omitempty"`
	SitemapURLLimit int    `json:"sitemap_url_limit,omitempty"`
}

// DiscoveryResult is one ranked contact-page candidate.
type DiscoveryResult struct {
	URL         string   `json:"url"`
	Score       int      `json:"score"`
	Positives   []string `json:"positives"`
	Negatives   []string `json:"negatives"`
	Status      int      `json:"status"`
	ContentType string   `json:"content_type"`
	Size        int      `json:"size"`
}

// DiscoverResponse is the envelope returned by the discovery service. Note
// explains an empty result set, for example a site without a sitemap.
type DiscoverResponse struct {
	RootURL    string            `json:"root_url"`
	Tried      int               `json:"tried"`
	Fetched    int               `json:"fetched"`
	ResultsTop []DiscoveryResult `json:"results_top"`
	Note       string            `json:"note,omitempty"`
}
