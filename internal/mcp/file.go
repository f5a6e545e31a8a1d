package mcp

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadRequestFile reads a PopupRequest written by the MCP server process.
// A request without an id gets a fresh one.
func LoadRequestFile(path string) (PopupRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PopupRequest{}, errors.Wrap(err, "failed to read request file")
	}

	var req PopupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return PopupRequest{}, errors.Wrap(err, "failed to parse request file")
	}
	if strings.TrimSpace(req.Message) == "" {
		return PopupRequest{}, errors.New("request file has no message")
	}

	req.EnsureID()
	return req, nil
}

// WriteResponse writes resp as a single JSON line, the form the MCP server
// process reads back.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "failed to encode response")
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write response")
	}
	return nil
}
