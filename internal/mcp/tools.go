package mcp

// SearchDocumentsInput is the input of search_documents.
type SearchDocumentsInput struct {
	Query string `json:"query" jsonschema:"substring to find, or a \"quoted phrase\""`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// SearchDocumentsOutput is the output of search_documents.
type SearchDocumentsOutput struct {
	Query    string         `json:"query"`
	Count    int            `json:"count"`
	Strategy string         `json:"strategy" jsonschema:"engine that answered: fulltext or lexicon"`
	Results  []SearchResult `json:"results"`
}

// SearchResult is one matching document.
type SearchResult struct {
	Filename string `json:"filename"`
	Snippet  string `json:"snippet" jsonschema:"text around the first match"`
}

// ListDocumentsInput is the input of list_documents.
type ListDocumentsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of documents, default all"`
}

// ListDocumentsOutput is the output of list_documents.
type ListDocumentsOutput struct {
	Count     int              `json:"count"`
	Documents []DocumentOutput `json:"documents"`
}

// DocumentOutput is one record as seen by a client.
type DocumentOutput struct {
	Filename     string `json:"filename"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	IsPublic     bool   `json:"is_public"`
	DateUploaded string `json:"date_uploaded"`
	URI          string `json:"uri"`
}

// ReadDocumentInput is the input of read_document.
type ReadDocumentInput struct {
	Filename string `json:"filename" jsonschema:"document filename as returned by list_documents"`
}

// ReadDocumentOutput is the output of read_document.
type ReadDocumentOutput struct {
	DocumentOutput
	Content string `json:"content"`
}
