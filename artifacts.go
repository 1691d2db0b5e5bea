package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ArtifactStore writes response dumps and screenshots under a per-run
// directory. Callers log write failures and carry on.
type ArtifactStore struct {
	dir   string
	runID string
	now   func() time.Time
}

// NewArtifactStore namespaces artifacts under baseDir/<run id>. The
// directory is created lazily on first write.
func NewArtifactStore(baseDir string) *ArtifactStore {
	runID := uuid.New().String()
	return &ArtifactStore{
		dir:   filepath.Join(baseDir, runID),
		runID: runID,
		now:   time.Now,
	}
}

func (s *ArtifactStore) RunID() string {
	return s.runID
}

func (s *ArtifactStore) Dir() string {
	return s.dir
}

type responseDump struct {
	TotalTickets int               `json:"total_tickets"`
	Pages        int               `json:"pages"`
	Responses    []json.RawMessage `json:"responses"`
}

// SaveResponses writes the raw page payloads of one cycle as
// response_<timestamp>.json.
func (s *ArtifactStore) SaveResponses(pages []*Page, totalTickets int) (string, error) {
	dump := responseDump{
		TotalTickets: totalTickets,
		Pages:        len(pages),
		Responses:    make([]json.RawMessage, 0, len(pages)),
	}
	for _, p := range pages {
		if len(p.Raw) == 0 {
			continue
		}
		dump.Responses = append(dump.Responses, p.Raw)
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode responses: %w", err)
	}

	return s.write("response", ".json", data)
}

// SaveScreenshot writes a PNG capture as <prefix>_<timestamp>.png.
func (s *ArtifactStore) SaveScreenshot(prefix string, data []byte) (string, error) {
	return s.write(prefix, ".png", data)
}

func (s *ArtifactStore) write(prefix, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}

	stamp := s.now().Format("20060102_150405")
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s%s", prefix, stamp, ext))

	// Several cycles can land in the same second at short intervals.
	for i := 2; fileExists(path); i++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%s_%d%s", prefix, stamp, i, ext))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
