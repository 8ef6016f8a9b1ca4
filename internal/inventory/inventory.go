// Package inventory aggregates remote state across environments to surface
// drift: orphaned service scopes, variables missing from some environments,
// and a full key×environment coverage matrix.
//
// The analysis is read-only and recomputed on demand. It performs no writes,
// so it is safe to run against production continuously.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// Lifecycle values for service summaries.
const (
	LifecycleActive = "active"
	LifecycleOrphan = "orphan"
)

// ReasonUnknownService marks variables scoped to a service absent from the
// authoritative service list.
const ReasonUnknownService = "unknown_service"

// ServiceSummary aggregates one scope across environments.
type ServiceSummary struct {
	Name         string   `json:"name"`
	VarCount     int      `json:"var_count"`
	Environments []string `json:"environments"`
	Lifecycle    string   `json:"lifecycle"`
}

// OrphanedVar is a variable whose scope no longer corresponds to a known
// service.
type OrphanedVar struct {
	Key    string      `json:"key"`
	Scope  scope.Scope `json:"scope"`
	Reason string      `json:"reason"`
}

// MissingVar is a variable present in some environments but not all.
type MissingVar struct {
	Key         string      `json:"key"`
	Scope       scope.Scope `json:"scope"`
	PresentIn   []string    `json:"present_in"`
	MissingFrom []string    `json:"missing_from"`
}

// CoverageRow is one (scope, key) row of the coverage matrix. Two variables
// sharing a key under different scopes are distinct rows.
type CoverageRow struct {
	Key          string          `json:"key"`
	Scope        scope.Scope     `json:"scope"`
	Environments map[string]bool `json:"environments"`
}

// Report is the derived drift analysis. It is never persisted.
type Report struct {
	Services       []ServiceSummary `json:"services"`
	OrphanedVars   []OrphanedVar    `json:"orphaned_vars"`
	MissingVars    []MissingVar     `json:"missing_vars"`
	CoverageMatrix []CoverageRow    `json:"coverage_matrix"`
}

// rowID identifies a coverage row.
type rowID struct {
	sc  scope.Scope
	key string
}

// Build fetches the full variable list once per environment and derives the
// report. Orphan detection requires an authoritative knownServices list and
// is skipped entirely when it is empty; shared-scoped variables are never
// orphans.
func Build(ctx context.Context, st store.Store, project string, environments []string, knownServices []string) (Report, error) {
	known := make(map[string]bool, len(knownServices))
	for _, name := range knownServices {
		known[name] = true
	}

	type scopeAgg struct {
		varCount int
		envs     map[string]bool
	}
	scopes := make(map[scope.Scope]*scopeAgg)
	coverage := make(map[rowID]map[string]bool)

	for _, env := range environments {
		vars, err := st.List(ctx, store.Query{Project: project, Environment: env})
		if err != nil {
			return Report{}, fmt.Errorf("failed to list %s/%s: %w", project, env, err)
		}

		for _, v := range vars {
			agg, ok := scopes[v.Scope]
			if !ok {
				agg = &scopeAgg{envs: make(map[string]bool)}
				scopes[v.Scope] = agg
			}
			agg.varCount++
			agg.envs[env] = true

			id := rowID{sc: v.Scope, key: v.Key}
			if coverage[id] == nil {
				coverage[id] = make(map[string]bool)
			}
			coverage[id][env] = true
		}
	}

	report := Report{}

	// Service summaries, shared pool included under its reserved name.
	for sc, agg := range scopes {
		lifecycle := LifecycleActive
		if sc.IsService() && len(known) > 0 && !known[sc.ServiceName()] {
			lifecycle = LifecycleOrphan
		}

		envs := make([]string, 0, len(agg.envs))
		for env := range agg.envs {
			envs = append(envs, env)
		}
		sort.Strings(envs)

		name := scope.SharedName
		if sc.IsService() {
			name = sc.ServiceName()
		}
		report.Services = append(report.Services, ServiceSummary{
			Name:         name,
			VarCount:     agg.varCount,
			Environments: envs,
			Lifecycle:    lifecycle,
		})
	}
	sort.Slice(report.Services, func(i, j int) bool {
		return report.Services[i].Name < report.Services[j].Name
	})

	// Deterministic row order: scope string, then key.
	ids := make([]rowID, 0, len(coverage))
	for id := range coverage {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].sc != ids[j].sc {
			return ids[i].sc.String() < ids[j].sc.String()
		}
		return ids[i].key < ids[j].key
	})

	for _, id := range ids {
		present := coverage[id]

		row := CoverageRow{Key: id.key, Scope: id.sc, Environments: make(map[string]bool, len(environments))}
		for _, env := range environments {
			row.Environments[env] = present[env]
		}
		report.CoverageMatrix = append(report.CoverageMatrix, row)

		if id.sc.IsService() && len(known) > 0 && !known[id.sc.ServiceName()] {
			report.OrphanedVars = append(report.OrphanedVars, OrphanedVar{
				Key:    id.key,
				Scope:  id.sc,
				Reason: ReasonUnknownService,
			})
		}

		// Keys present in zero or in all environments are not drift.
		if len(present) >= 1 && len(present) < len(environments) {
			var presentIn, missingFrom []string
			for _, env := range environments {
				if present[env] {
					presentIn = append(presentIn, env)
				} else {
					missingFrom = append(missingFrom, env)
				}
			}
			sort.Strings(presentIn)
			sort.Strings(missingFrom)
			report.MissingVars = append(report.MissingVars, MissingVar{
				Key:         id.key,
				Scope:       id.sc,
				PresentIn:   presentIn,
				MissingFrom: missingFrom,
			})
		}
	}

	return report, nil
}
