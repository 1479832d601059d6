package trialindex

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultIndex = "clinical_trials"
)

// Client talks to the Elasticsearch-compatible trial index over its REST
// API. The index is an opaque ranked-retrieval oracle: populated by
// out-of-scope ETL, queried here.
type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
	Index      string
	// APIKey is sent as an ApiKey authorization header when set.
	APIKey string
}

func New(logger *zap.Logger, apiURL string) *Client {
	return &Client{
		logger: logger,
		APIURL: apiURL,
		Index:  defaultIndex,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}
