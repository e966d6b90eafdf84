package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTask  ResultType = "task"
	ResultBoard ResultType = "board"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	BoardID string     `json:"boardId"`
	ListID  string     `json:"listId,omitempty"`
}

// Query describes a search request. BoardIDs is the visibility scope:
// the boards the requesting user is a member of. An empty scope yields
// no results.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterBoardID string
	BoardIDs      []string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexTask(t TaskRecord) error
	IndexBoard(b BoardRecord) error
	DeleteTask(id string) error
	DeleteBoard(id string) error
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ListID      string `json:"listId"`
	ListTitle   string `json:"listTitle"`
	BoardID     string `json:"boardId"`
}

// BoardRecord is the data we index for a board.
type BoardRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	BoardID     string `json:"boardId"` // same as ID, kept for uniform filtering
}
