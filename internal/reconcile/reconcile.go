// Package reconcile re-derives canonical names for previously filed
// confirmation documents and repairs the operator folder without ever
// overwriting a distinct document.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lanceiro/internal/cota"
)

// QuarantineDirName is the holding folder for documents whose canonical name
// collides with an existing file.
const QuarantineDirName = "Conflitos"

// Report summarizes one reconciliation pass.
type Report struct {
	Scanned   int
	Renamed   int
	Correct   int
	Conflicts int
	Errors    int
}

// Reconciler scans an operator folder and renames filed documents to their
// canonical form.
type Reconciler struct {
	extractor TextExtractor
	log       *zap.Logger
}

// New builds a reconciler around the given text extractor.
func New(extractor TextExtractor, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{extractor: extractor, log: log}
}

type pendingRename struct {
	oldPath string
	newName string
}

// Run reconciles every bid document directly under folder. The pass is three
// phased: plan all renames without touching the filesystem, apply them with
// conflict quarantine, then attempt to resolve the quarantine. One unreadable
// document counts as an error and never aborts the pass.
func (r *Reconciler) Run(folder string) (Report, error) {
	var report Report

	entries, err := os.ReadDir(folder)
	if err != nil {
		return report, fmt.Errorf("read folder %s: %w", folder, err)
	}

	quarantine := filepath.Join(folder, QuarantineDirName)

	// Phase 1: plan.
	var pending []pendingRename
	for _, entry := range entries {
		if entry.IsDir() || !isBidDocument(entry.Name()) {
			continue
		}
		report.Scanned++

		name, _, failure := r.canonicalName(filepath.Join(folder, entry.Name()))
		if failure != "" {
			r.log.Warn("skipping unreadable document",
				zap.String("file", entry.Name()), zap.String("reason", failure))
			report.Errors++
			continue
		}

		if entry.Name() == name {
			report.Correct++
			continue
		}
		pending = append(pending, pendingRename{
			oldPath: filepath.Join(folder, entry.Name()),
			newName: name,
		})
	}

	if len(pending) == 0 {
		r.log.Info("no documents need renaming", zap.String("folder", folder))
		return report, nil
	}

	// Phase 2: rename, quarantining on collision rather than overwriting.
	for _, p := range pending {
		newPath := filepath.Join(folder, p.newName)
		if _, err := os.Stat(newPath); err == nil {
			r.log.Warn("destination occupied, quarantining source",
				zap.String("source", filepath.Base(p.oldPath)),
				zap.String("destination", p.newName))
			if err := os.MkdirAll(quarantine, 0o755); err != nil {
				r.log.Error("create quarantine folder", zap.Error(err))
				report.Errors++
				continue
			}
			if err := os.Rename(p.oldPath, filepath.Join(quarantine, filepath.Base(p.oldPath))); err != nil {
				r.log.Error("move to quarantine", zap.Error(err))
				report.Errors++
				continue
			}
			report.Conflicts++
			continue
		}
		if err := os.Rename(p.oldPath, newPath); err != nil {
			r.log.Error("rename failed",
				zap.String("source", filepath.Base(p.oldPath)), zap.Error(err))
			report.Errors++
			continue
		}
		r.log.Info("renamed",
			zap.String("from", filepath.Base(p.oldPath)), zap.String("to", p.newName))
		report.Renamed++
	}

	// Phase 3: retry quarantined documents whose target freed up.
	r.resolveQuarantine(folder, quarantine, &report)
	return report, nil
}

// resolveQuarantine recomputes names for quarantined files and moves out any
// whose canonical name is now free. The second pass intentionally names by
// identity only, without the person-name prefix of the first pass.
func (r *Reconciler) resolveQuarantine(folder, quarantine string, report *Report) {
	entries, err := os.ReadDir(quarantine)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Error("read quarantine folder", zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(quarantine, entry.Name())
		_, id, failure := r.canonicalName(src)
		if failure != "" {
			r.log.Warn("quarantined document still unreadable",
				zap.String("file", entry.Name()), zap.String("reason", failure))
			continue
		}
		finalName := fmt.Sprintf("LANCE- %s.pdf", id)
		finalPath := filepath.Join(folder, finalName)
		if _, err := os.Stat(finalPath); err == nil {
			r.log.Warn("conflict persists, document stays in quarantine",
				zap.String("file", entry.Name()))
			continue
		}
		if err := os.Rename(src, finalPath); err != nil {
			r.log.Error("move out of quarantine", zap.Error(err))
			continue
		}
		r.log.Info("quarantine resolved",
			zap.String("from", entry.Name()), zap.String("to", finalName))
		report.Conflicts--
		report.Renamed++
	}

	remaining, err := os.ReadDir(quarantine)
	if err == nil && len(remaining) == 0 {
		if err := os.Remove(quarantine); err == nil {
			r.log.Info("quarantine folder emptied and removed")
		}
	}
}

// canonicalName computes the canonical filename for a document on disk. The
// failure string is non-empty when extraction was incomplete.
func (r *Reconciler) canonicalName(path string) (string, cota.Identity, string) {
	text, err := r.extractor.Text(path)
	if err != nil {
		return "", cota.Identity{}, err.Error()
	}
	name, id, diag := cota.ExtractWithName(text)
	if diag != "" {
		return "", cota.Identity{}, diag
	}
	return cota.Filename(name, id), id, ""
}

func isBidDocument(name string) bool {
	upper := strings.ToUpper(name)
	return strings.HasPrefix(upper, "LANCE") && strings.HasSuffix(upper, ".PDF")
}
