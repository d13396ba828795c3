// Package dataset loads the labeled reference set used by the evaluate
// stage: a spreadsheet mapping clip filenames to their true emotion labels.
package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LabeledClip is one ground-truth row: a clip and its annotated emotion.
type LabeledClip struct {
	File  string
	Label string
}

// Load reads the first sheet of an xlsx file, auto-detecting the file and
// label columns by header heuristics so annotators' exact column names do
// not matter.
func Load(path string) ([]LabeledClip, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	fileIdx := -1
	labelIdx := -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "file") || strings.Contains(l, "clip") || strings.Contains(l, "audio"):
			if fileIdx == -1 {
				fileIdx = i
			}
		case strings.Contains(l, "label") || strings.Contains(l, "emotion") || strings.Contains(l, "class"):
			if labelIdx == -1 {
				labelIdx = i
			}
		}
	}
	if fileIdx == -1 || labelIdx == -1 {
		return nil, fmt.Errorf("could not locate file/label columns in header %v", header)
	}

	var out []LabeledClip
	for i, r := range rows {
		if i == 0 {
			continue
		}
		clip := LabeledClip{}
		if fileIdx < len(r) {
			clip.File = strings.TrimSpace(r[fileIdx])
		}
		if labelIdx < len(r) {
			clip.Label = strings.ToLower(strings.TrimSpace(r[labelIdx]))
		}
		// skip rows without both values quietly
		if clip.File == "" || clip.Label == "" {
			continue
		}
		out = append(out, clip)
	}
	return out, nil
}

// Index returns clips keyed by filename for O(1) lookup during scoring.
func Index(clips []LabeledClip) map[string]string {
	idx := make(map[string]string, len(clips))
	for _, c := range clips {
		idx[c.File] = c.Label
	}
	return idx
}
