package index

// Posting links a token to one field of one document.
type Posting struct {
	DocID         string  `json:"doc_id"`
	Field         string  `json:"field"`
	TermFrequency int     `json:"term_frequency"`
	FieldBoost    float64 `json:"field_boost"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// Hit is one ranked search result. Terms holds the indexed tokens that
// matched, which may differ from the query tokens under fuzzy expansion.
type Hit struct {
	DocID string   `json:"doc_id"`
	Score float64  `json:"score"`
	Terms []string `json:"terms,omitempty"`
}

// Stats is a point-in-time count of index contents.
type Stats struct {
	Documents int `json:"documents"`
	Terms     int `json:"terms"`
	Postings  int `json:"postings"`
}
