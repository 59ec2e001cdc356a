// Package fsck runs the repository consistency checklist: object store
// integrity, ref-to-commit consistency, and per-branch Merkle/signature
// verification. It is the library half of the "verify" command.
package fsck

import (
	"fmt"
	"path/filepath"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/vivek-tiwari-vt/agmem/pkg/trust"
)

// Issue is one consistency problem found during a check.
type Issue struct {
	Category string // "objects", "refs", "crypto"
	Detail   string
}

// Report summarizes a full fsck run.
type Report struct {
	LooseObjects int
	PackFiles    int
	PackObjects  int
	Issues       []Issue
}

// Healthy reports whether the run found zero issues.
func (r *Report) Healthy() bool {
	return len(r.Issues) == 0
}

// Run performs every check against repo r and returns the aggregate
// report. Object-store corruption aborts early since nothing downstream
// (refs, crypto) can be trusted once object reads are unreliable.
func Run(r *repo.Repo) (*Report, error) {
	report := &Report{}

	objReport, err := r.Store.Verify()
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}
	report.LooseObjects = objReport.LooseObjects
	report.PackFiles = objReport.PackFiles
	report.PackObjects = objReport.PackObjects

	checkRefs(r, report)
	checkCrypto(r, report)

	return report, nil
}

func checkRefs(r *repo.Repo, report *Report) {
	branches, err := r.ListBranches()
	if err != nil {
		report.Issues = append(report.Issues, Issue{Category: "refs", Detail: fmt.Sprintf("list branches: %v", err)})
		return
	}
	for _, name := range branches {
		hash, err := r.ResolveRef(filepath.ToSlash(filepath.Join("refs", "heads", name)))
		if err != nil {
			report.Issues = append(report.Issues, Issue{Category: "refs", Detail: fmt.Sprintf("branch %q: unreadable ref: %v", name, err)})
			continue
		}
		if hash == "" {
			continue
		}
		if !r.Store.Has(hash) {
			report.Issues = append(report.Issues, Issue{Category: "refs", Detail: fmt.Sprintf("branch %q points to missing commit %s", name, hash)})
		}
	}
}

func checkCrypto(r *repo.Repo, report *Report) {
	store, err := trust.Open(filepath.Join(r.GotDir, "trust", "trust.json"))
	if err != nil {
		report.Issues = append(report.Issues, Issue{Category: "crypto", Detail: fmt.Sprintf("open trust store: %v", err)})
		return
	}

	branches, err := r.ListBranches()
	if err != nil {
		report.Issues = append(report.Issues, Issue{Category: "crypto", Detail: fmt.Sprintf("list branches: %v", err)})
		return
	}
	for _, name := range branches {
		hash, err := r.ResolveRef(filepath.ToSlash(filepath.Join("refs", "heads", name)))
		if err != nil || hash == "" {
			continue
		}
		ok, reason, err := r.VerifyCommitIntegrity(hash, store.Lookup)
		if err != nil {
			report.Issues = append(report.Issues, Issue{Category: "crypto", Detail: fmt.Sprintf("branch %q (%s): %v", name, shortHash(hash), err)})
			continue
		}
		if !ok {
			report.Issues = append(report.Issues, Issue{Category: "crypto", Detail: fmt.Sprintf("branch %q (%s): %s", name, shortHash(hash), reason)})
		}
	}
}

func shortHash(h object.Hash) string {
	s := string(h)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
