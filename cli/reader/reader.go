package reader

import (
	"context"
	"errors"

	"github.com/pithecene-io/vsixctl/ledger"
	"github.com/pithecene-io/vsixctl/vsix"
)

// InspectExtension summarizes an opened package. Schema problems are
// reported in the payload rather than returned.
func InspectExtension(r *vsix.Reader) (*ExtensionSummary, error) {
	m, err := r.ReadExtensionManifest()
	if err != nil {
		return nil, err
	}
	manifestPath, err := r.ManifestPath()
	if err != nil {
		return nil, err
	}
	files, err := r.ListFiles()
	if err != nil {
		return nil, err
	}
	infos, err := r.TasksInfo()
	if err != nil {
		return nil, err
	}

	sum := &ExtensionSummary{
		Source:       r.Source(),
		Manifest:     manifestPath,
		Publisher:    m.Publisher,
		ExtensionID:  m.ID,
		Version:      m.Version,
		Name:         m.Name,
		Description:  m.Description,
		Public:       m.Public != nil && *m.Public,
		GalleryFlags: append([]string{}, m.GalleryFlags...),
		Files:        append([]string{}, files...),
		Tasks:        []TaskSummary{},
		Valid:        true,
	}

	for _, info := range infos {
		sum.Tasks = append(sum.Tasks, TaskSummary{
			Dir:          info.Name,
			Contribution: info.ContributionID,
			Name:         info.Manifest.Name,
			FriendlyName: info.Manifest.FriendlyName,
			ID:           info.Manifest.ID,
			Version:      info.Manifest.Version.String(),
			Inputs:       len(info.Manifest.Inputs),
		})
	}

	if err := r.Validate(); err != nil {
		var verr *vsix.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		sum.Valid = false
		for _, p := range verr.Problems {
			sum.Problems = append(sum.Problems, p.Path+": "+p.Err.Error())
		}
	}
	return sum, nil
}

// HistorySource is the read side of the ledger.
type HistorySource interface {
	Recent(ctx context.Context, q ledger.Query) ([]map[string]any, error)
}

// ListHistory returns ledger records as rows, newest first.
func ListHistory(ctx context.Context, src HistorySource, q ledger.Query) ([]HistoryItem, error) {
	records, err := src.Recent(ctx, q)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(records))
	for _, rec := range records {
		item, err := ParseHistoryRecord(rec)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// StatsHistory aggregates ledger records.
func StatsHistory(ctx context.Context, src HistorySource, q ledger.Query) (*HistoryStats, error) {
	records, err := src.Recent(ctx, q)
	if err != nil {
		return nil, err
	}
	stats := &HistoryStats{ByCommand: map[string]int{}}
	for _, rec := range records {
		kind := toString(rec["record_kind"])
		switch kind {
		case "invocation":
			stats.Invocations++
			if toInt64(rec["exit_code"]) == 0 {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
		case "package":
			stats.Packages++
			if toBool(rec["published"]) {
				stats.Published++
			}
		default:
			continue
		}
		stats.Total++
		if cmd := toString(rec["command"]); cmd != "" {
			stats.ByCommand[cmd]++
		}
	}
	return stats, nil
}
