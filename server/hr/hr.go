// Package hr looks up employee details in the company's HR system (Odoo),
// so that an administrator creating a staff member only needs the file number.
package hr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
)

const lookupTimeout = 10 * time.Second

type Employee struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
}

// Client is a narrow read-only view onto the HR endpoint. The HR system's
// own data model is not ours to define; we consume only the two fields we
// need for prefill.
type Client struct {
	baseURL string
	apiKey  string
	log     logs.Log
}

func NewClient(log logs.Log, baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
	}
}

// LookupEmployee fetches the employee with the given file number.
// The call is bounded by lookupTimeout; a slow or broken HR system fails the
// lookup, never the server.
func (c *Client) LookupEmployee(ctx context.Context, fileID string) (*Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	u := c.baseURL + "/api/employees/lookup?fileId=" + url.QueryEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	employee := Employee{}
	if err := www.FetchJSON(req, &employee); err != nil {
		return nil, fmt.Errorf("HR lookup for %v failed: %w", fileID, err)
	}
	if employee.FileID == "" {
		employee.FileID = fileID
	}
	return &employee, nil
}
