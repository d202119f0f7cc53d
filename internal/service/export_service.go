package service

import (
	"fmt"
	"log/slog"
	"time"

	celeval "github.com/playforge/gameflow/internal/adapter/outbound/cel"
	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/pkg/ruledef"
)

// SnapshotStore persists export snapshots. Implemented by the sqlite
// adapter; nil disables persistence.
type SnapshotStore interface {
	// Save stores a snapshot, replacing any previous one.
	Save(s *ruledef.ExportSnapshot) error
	// Load returns the most recent stored snapshot.
	Load() (*ruledef.ExportSnapshot, error)
}

// ImportReport summarizes one import: expression rules are fully
// reconstructed, func rules carry no portable condition and are skipped as
// metadata-only records.
type ImportReport struct {
	// Imported counts rules reconstructed and registered.
	Imported int
	// Skipped counts metadata-only records that could not be rebuilt.
	Skipped int
	// Errors lists per-record failures; one bad record never aborts the
	// import.
	Errors []string
}

// ExportService is the engine's only persistence seam: it serializes
// registered rule metadata to snapshots and reconstructs rules from them.
type ExportService struct {
	rules     *RuleService
	evaluator *celeval.Evaluator
	store     SnapshotStore
	logger    *slog.Logger
}

// NewExportService creates an ExportService. store may be nil.
func NewExportService(rules *RuleService, evaluator *celeval.Evaluator, store SnapshotStore, logger *slog.Logger) *ExportService {
	return &ExportService{
		rules:     rules,
		evaluator: evaluator,
		store:     store,
		logger:    logger,
	}
}

// Export serializes every registered rule. When a snapshot store is
// configured the snapshot is also persisted; persistence failures are
// logged, not surfaced, since the in-memory export is already complete.
func (s *ExportService) Export() *ruledef.ExportSnapshot {
	all := s.rules.All()
	snap := &ruledef.ExportSnapshot{
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Rules:      make([]ruledef.RuleRecord, 0, len(all)),
	}

	for _, r := range all {
		info := r.Info()
		rec := ruledef.RuleRecord{
			ID:          info.ID,
			Name:        info.Name,
			Description: info.Description,
			Category:    info.Category,
			Enabled:     s.rules.IsEnabled(info.ID),
			Tags:        info.Tags,
			Version:     info.Version,
			Kind:        string(r.Kind()),
			Metadata:    info.Metadata,
		}
		if er, ok := r.(*celeval.ExprRule); ok {
			rec.Expression = er.Expression()
			rec.Actions = ruledef.FromActions(er.Actions())
		}
		snap.Rules = append(snap.Rules, rec)
	}

	if s.store != nil {
		if err := s.store.Save(snap); err != nil {
			s.logger.Warn("failed to persist export snapshot", "error", err)
		}
	}

	return snap
}

// Import reconstructs rules from a snapshot. Expression rules are rebuilt
// by recompiling their serialized condition; records of other kinds are
// metadata-only and counted as skipped. Records that collide with an
// already registered id are reported as errors.
func (s *ExportService) Import(snap *ruledef.ExportSnapshot) ImportReport {
	var report ImportReport
	if snap == nil {
		report.Errors = append(report.Errors, "nil snapshot")
		return report
	}

	for _, rec := range snap.Rules {
		if rule.Kind(rec.Kind) != rule.KindExpr {
			report.Skipped++
			continue
		}

		r, err := celeval.NewExprRule(s.evaluator, ruledef.ToInfo(rec), rec.Expression, ruledef.ToActions(rec.Actions))
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("rule %s: %v", rec.ID, err))
			continue
		}
		if err := s.rules.Register(r); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("rule %s: %v", rec.ID, err))
			continue
		}
		if !rec.Enabled {
			s.rules.SetEnabled(rec.ID, false)
		}
		report.Imported++
	}

	s.logger.Info("rules imported",
		"imported", report.Imported, "skipped", report.Skipped, "errors", len(report.Errors))
	return report
}

// LoadStored imports the most recent persisted snapshot.
func (s *ExportService) LoadStored() (ImportReport, error) {
	if s.store == nil {
		return ImportReport{}, fmt.Errorf("no snapshot store configured")
	}
	snap, err := s.store.Load()
	if err != nil {
		return ImportReport{}, err
	}
	return s.Import(snap), nil
}
