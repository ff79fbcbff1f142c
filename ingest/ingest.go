// Package ingest loads consultation representations from disk.
//
// Two layouts are read from a directory tree:
//   - .txt files, one representation each, identified by relative path
//   - .json consultation exports, one respondent object or an array of them
package ingest

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
)

// Metadata keys set on documents loaded from consultation exports.
const (
	MetaPath     = "path"
	MetaMethod   = "method"
	MetaPostcode = "respondentpostcode"
	MetaStance   = "support_object"
	MetaElement  = "documentelementtitle"
)

// Result is the outcome of a load.
type Result struct {
	Documents []consult.Document
	Skipped   []string // sources with no text
}

// Loader reads documents from a directory tree.
type Loader struct {
	logger *zap.SugaredLogger
}

// NewLoader creates a loader.
func NewLoader(log *zap.SugaredLogger) *Loader {
	return &Loader{logger: logger.OrNop(log)}
}

// LoadDir walks root and returns every non-empty document in path order.
// A single file path is accepted too. Duplicate identities are an error.
func (l *Loader) LoadDir(root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", root)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s", root)
		}
	} else {
		if !supported(root) {
			return nil, errors.WithHint(
				errors.Newf("unsupported input file %s", root),
				"Input files must end in .txt or .json")
		}
		files = []string{root}
		root = filepath.Dir(root)
	}
	sort.Strings(files)

	result := &Result{}
	seen := make(map[string]string)
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		var docs []consult.Document
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt":
			docs, err = loadText(path, rel)
		case ".json":
			docs, err = loadJSON(path, rel)
		}
		if err != nil {
			return nil, err
		}

		for _, doc := range docs {
			if strings.TrimSpace(doc.Text) == "" {
				result.Skipped = append(result.Skipped, doc.ID)
				l.logger.Debugw("Skipping empty representation", logger.FieldDocID, doc.ID, logger.FieldPath, rel)
				continue
			}
			if prev, dup := seen[doc.ID]; dup {
				return nil, errors.WithHint(
					errors.Newf("duplicate document id %q in %s and %s", doc.ID, prev, rel),
					"Every representation needs a unique id")
			}
			seen[doc.ID] = rel
			result.Documents = append(result.Documents, doc)
		}
	}

	l.logger.Infow("Loaded representations",
		logger.FieldPath, root,
		logger.FieldCount, len(result.Documents),
		"skipped", len(result.Skipped))
	return result, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".json":
		return true
	}
	return false
}

func loadText(path, rel string) ([]consult.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", rel)
	}
	return []consult.Document{{
		ID:       strings.TrimSuffix(rel, filepath.Ext(rel)),
		Text:     strings.TrimSpace(string(data)),
		Metadata: map[string]string{MetaPath: rel},
	}}, nil
}

// respondent is one consultation export record.
type respondent struct {
	ID              json.RawMessage  `json:"id"`
	Method          string           `json:"method"`
	Postcode        string           `json:"respondentpostcode"`
	Text            string           `json:"text"`
	Representations []representation `json:"representations"`
}

type representation struct {
	SupportObject string `json:"support/object"`
	Document      string `json:"document"`
	ElementTitle  string `json:"documentelementtitle"`
	Summary       string `json:"summary"`
}

func loadJSON(path, rel string) ([]consult.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", rel)
	}

	var records []respondent
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &records)
	} else {
		var one respondent
		err = json.Unmarshal(data, &one)
		records = []respondent{one}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", rel)
	}

	docs := make([]consult.Document, 0, len(records))
	for i, r := range records {
		id := rawID(r.ID)
		if id == "" {
			id = strings.TrimSuffix(rel, filepath.Ext(rel))
			if len(records) > 1 {
				id += "#" + strconv.Itoa(i+1)
			}
		}
		docs = append(docs, consult.Document{
			ID:       id,
			Text:     respondentText(r),
			Metadata: respondentMetadata(r, rel),
		})
	}
	return docs, nil
}

// rawID renders a numeric or string JSON id.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// respondentText prefers the free text and falls back to the
// representation summaries when the respondent wrote nothing else.
func respondentText(r respondent) string {
	if text := strings.TrimSpace(r.Text); text != "" {
		return text
	}
	var parts []string
	for _, rep := range r.Representations {
		if s := strings.TrimSpace(rep.Summary); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func respondentMetadata(r respondent, rel string) map[string]string {
	meta := map[string]string{MetaPath: rel}
	if r.Method != "" {
		meta[MetaMethod] = r.Method
	}
	if r.Postcode != "" {
		meta[MetaPostcode] = r.Postcode
	}
	if len(r.Representations) > 0 {
		first := r.Representations[0]
		if first.SupportObject != "" {
			meta[MetaStance] = first.SupportObject
		}
		if first.ElementTitle != "" {
			meta[MetaElement] = first.ElementTitle
		}
	}
	return meta
}
