package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/linesmerrill/police-blotter-api/models"
)

// Pick is the officer chosen for a report and why
type Pick struct {
	OfficerID   string    `json:"officerId"`
	OpenCount   int       `json:"openCount"`
	LastUpdated time.Time `json:"lastUpdated"`
	PoolSize    int       `json:"poolSize"`
	// Reason is machine readable and goes into the audit entry
	Reason string `json:"reason"`
}

type candidate struct {
	officer     models.Officer
	openCount   int
	lastUpdated time.Time
}

// IsAssignable reports whether an officer may receive assignments at all
func IsAssignable(o models.Officer) bool {
	return o.Role == models.OfficerRoleOfficer && o.Status == models.OfficerActive
}

// EligibleOfficers filters pool to active officers, narrowed to the report's
// jurisdiction when at least one officer there qualifies.
func EligibleOfficers(report models.Report, pool []models.Officer) []models.Officer {
	var active, local []models.Officer
	for _, o := range pool {
		if !IsAssignable(o) {
			continue
		}
		active = append(active, o)
		if report.JurisdictionID != "" && o.JurisdictionID == report.JurisdictionID {
			local = append(local, o)
		}
	}
	if len(local) > 0 {
		return local
	}
	return active
}

// PickOfficer selects the least loaded eligible officer. workload holds every
// report currently or last held by officers in the pool. Ties on open count go
// to the officer whose latest report activity is oldest, then to the lowest uid.
func PickOfficer(report models.Report, pool []models.Officer, workload []models.Report) (Pick, error) {
	eligible := EligibleOfficers(report, pool)
	if len(eligible) == 0 {
		return Pick{}, fmt.Errorf("%w: for report %s", models.ErrNoEligibleOfficers, report.ID)
	}

	byID := make(map[string]*candidate, len(eligible))
	candidates := make([]*candidate, 0, len(eligible))
	for _, o := range eligible {
		c := &candidate{officer: o}
		byID[o.UID] = c
		candidates = append(candidates, c)
	}

	for _, r := range workload {
		if c, ok := byID[r.AssignedOfficerID]; ok {
			if r.Status.IsOpenAssignment() {
				c.openCount++
			}
			if r.UpdatedAt.After(c.lastUpdated) {
				c.lastUpdated = r.UpdatedAt
			}
		}
		if r.LastAssignedOfficerID != r.AssignedOfficerID {
			if c, ok := byID[r.LastAssignedOfficerID]; ok && r.UpdatedAt.After(c.lastUpdated) {
				c.lastUpdated = r.UpdatedAt
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.openCount != b.openCount {
			return a.openCount < b.openCount
		}
		if !a.lastUpdated.Equal(b.lastUpdated) {
			return a.lastUpdated.Before(b.lastUpdated)
		}
		return a.officer.UID < b.officer.UID
	})

	win := candidates[0]
	var last int64
	if !win.lastUpdated.IsZero() {
		last = win.lastUpdated.UnixMilli()
	}
	return Pick{
		OfficerID:   win.officer.UID,
		OpenCount:   win.openCount,
		LastUpdated: win.lastUpdated,
		PoolSize:    len(candidates),
		Reason:      fmt.Sprintf("openCount=%d;lastUpdated=%d;pool=%d", win.openCount, last, len(candidates)),
	}, nil
}

// Picker loads a fresh officer pool and workload on every call
type Picker struct {
	Officers OfficerStore
	Reports  ReportStore
}

// Pick chooses an officer for report, never one listed in exclude
func (p *Picker) Pick(ctx context.Context, report models.Report, exclude ...string) (Pick, models.Officer, error) {
	pool, err := p.Officers.ListActive(ctx)
	if err != nil {
		return Pick{}, models.Officer{}, err
	}
	if len(exclude) > 0 {
		skip := make(map[string]bool, len(exclude))
		for _, id := range exclude {
			skip[id] = true
		}
		kept := pool[:0:0]
		for _, o := range pool {
			if !skip[o.UID] {
				kept = append(kept, o)
			}
		}
		pool = kept
	}

	eligible := EligibleOfficers(report, pool)
	if len(eligible) == 0 {
		return Pick{}, models.Officer{}, fmt.Errorf("%w: for report %s", models.ErrNoEligibleOfficers, report.ID)
	}
	ids := make([]string, len(eligible))
	for i, o := range eligible {
		ids[i] = o.UID
	}
	workload, err := p.Reports.ListByOfficers(ctx, ids)
	if err != nil {
		return Pick{}, models.Officer{}, err
	}

	pick, err := PickOfficer(report, eligible, workload)
	if err != nil {
		return Pick{}, models.Officer{}, err
	}
	for _, o := range eligible {
		if o.UID == pick.OfficerID {
			return pick, o, nil
		}
	}
	return pick, models.Officer{}, fmt.Errorf("%w: picked officer %s", models.ErrNotFound, pick.OfficerID)
}
