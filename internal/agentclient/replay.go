package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// ErrNoRecording is returned by ReplayExecutor for queries it has no
// recording for.
var ErrNoRecording = errors.New("replay: no recording for query")

// Recording is one recorded agent exchange.
type Recording struct {
	Query                string `json:"query" yaml:"query"`
	models.AgentResponse `yaml:",inline"`
	// Error makes the replay fail with this message.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// Delay is waited before answering, honoring cancellation.
	Delay time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// ReplayExecutor answers from recorded responses, keyed by query text
// (case and surrounding whitespace are ignored).
type ReplayExecutor struct {
	recordings map[string]Recording
}

// NewReplayExecutor indexes recordings by query. Later duplicates win.
func NewReplayExecutor(recordings []Recording) *ReplayExecutor {
	index := make(map[string]Recording, len(recordings))
	for _, r := range recordings {
		index[replayKey(r.Query)] = r
	}
	return &ReplayExecutor{recordings: index}
}

// LoadReplay reads recordings from a YAML or JSON file holding a list of
// recordings.
func LoadReplay(path string) (*ReplayExecutor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	var recordings []Recording
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &recordings)
	default:
		err = yaml.Unmarshal(data, &recordings)
	}
	if err != nil {
		return nil, fmt.Errorf("parse replay file: %w", err)
	}
	for i, r := range recordings {
		if strings.TrimSpace(r.Query) == "" {
			return nil, fmt.Errorf("replay entry %d has no query", i)
		}
	}
	return NewReplayExecutor(recordings), nil
}

// Len returns the number of distinct recorded queries.
func (r *ReplayExecutor) Len() int {
	return len(r.recordings)
}

// Execute returns the recording for req.Query.
func (r *ReplayExecutor) Execute(ctx context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
	rec, ok := r.recordings[replayKey(req.Query)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoRecording, req.Query)
	}
	if rec.Delay > 0 {
		timer := time.NewTimer(rec.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if rec.Error != "" {
		return nil, errors.New(rec.Error)
	}
	resp := rec.AgentResponse
	return &resp, nil
}

func replayKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
