package syncer

import (
	"context"
	"sort"
	"time"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/checksum"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/remote"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/resolve"
)

// fetch pulls the remote schema and records plus the local workspace
// state. An adapter that reports no schema skips the table check.
func (o *Orchestrator) fetch(ctx context.Context, res *Result, pass *passState) error {
	tables, err := o.deps.Store.Schema(ctx)
	if err != nil {
		return err
	}
	if len(tables) > 0 {
		found := false
		for _, tbl := range tables {
			if tbl.Ref == o.deps.Table {
				found = true
				break
			}
		}
		if !found {
			return errors.NewValidationError("table", o.deps.Table, "not present in remote schema")
		}
	}

	records, err := o.deps.Store.Records(ctx, o.deps.Table)
	if err != nil {
		return err
	}
	res.RemoteRecords = len(records)

	pass.remoteV = make(map[string]map[string]any, len(records))
	pass.fetched = make(map[string]time.Time, len(records))
	for _, rec := range records {
		pass.remoteV[rec.ID] = rec.Values
		at := rec.FetchedAt
		if at.IsZero() {
			at = o.now()
		}
		pass.fetched[rec.ID] = at
	}

	pass.local, err = o.deps.Workspace.Entities(ctx)
	return err
}

// diff selects the entities with a change on either side and computes
// field-level diffs against the last reconciled baseline. Entities are
// processed in sorted id order so repeated passes over the same input are
// deterministic.
func (o *Orchestrator) diff(_ context.Context, res *Result, pass *passState) error {
	o.mu.Lock()
	baseline := o.baseline
	remoteSums := o.remoteSums
	o.mu.Unlock()

	dirty := make(map[string]struct{})
	for _, id := range o.deps.Tracker.DirtyEntities() {
		dirty[id] = struct{}{}
	}

	ids := make(map[string]struct{})
	for id := range pass.local {
		ids[id] = struct{}{}
	}
	for id := range pass.remoteV {
		ids[id] = struct{}{}
	}
	for id := range baseline {
		ids[id] = struct{}{}
	}
	for id := range dirty {
		ids[id] = struct{}{}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		base := baseline[id]
		local, localExists := pass.local[id]
		remoteVals, remoteExists := pass.remoteV[id]

		_, isDirty := dirty[id]

		// Cheap skip: remote unchanged since last pass and no local edits.
		if remoteExists && !isDirty {
			if sum, known := remoteSums[id]; known && sum == checksum.Sum(remoteVals) && localExists {
				if len(checksum.DiffFields(base, local)) == 0 {
					continue
				}
			}
		}

		// Local copy deleted while the remote row survives.
		if !localExists && base != nil && remoteExists && isDirty {
			if o.dir != RemoteToLocal {
				pass.dropped = append(pass.dropped, id)
			}
			continue
		}

		// Remote row disappeared since the last reconciliation.
		if !remoteExists && base != nil {
			if isDirty {
				// Unreconciled local edits win over the remote deletion;
				// the row is pushed back on Applying.
				if o.dir != RemoteToLocal {
					pass.rewrites = append(pass.rewrites, id)
				}
			} else if localExists && o.dir != LocalToRemote {
				pass.deleted = append(pass.deleted, id)
			}
			continue
		}

		plan := &entityPlan{
			id:          id,
			base:        base,
			localDiff:   checksum.DiffFields(base, local),
			remoteDiff:  checksum.DiffFields(base, remoteVals),
			applyLocal:  make(map[string]any),
			applyRemote: make(map[string]any),
		}
		if len(plan.localDiff) == 0 && len(plan.remoteDiff) == 0 {
			// Nothing to reconcile, but a dirty entity whose values
			// circled back to the baseline (edit then undo) still needs
			// its flag cleared, so it rides through to Logging.
			if !isDirty {
				continue
			}
		}
		pass.plans = append(pass.plans, plan)
	}

	res.EntitiesDiffed = len(pass.plans) + len(pass.deleted) + len(pass.rewrites) + len(pass.dropped)
	return nil
}

// resolveAll classifies each diffed field: one-sided changes are
// unconditional carries, both-sided changes go through the conflict
// resolver.
func (o *Orchestrator) resolveAll(_ context.Context, res *Result, pass *passState) error {
	for _, plan := range pass.plans {
		localByField := make(map[string]checksum.FieldChange, len(plan.localDiff))
		for _, fc := range plan.localDiff {
			localByField[fc.Field] = fc
		}
		remoteByField := make(map[string]checksum.FieldChange, len(plan.remoteDiff))
		for _, fc := range plan.remoteDiff {
			remoteByField[fc.Field] = fc
		}

		fields := make([]string, 0, len(localByField)+len(remoteByField))
		seen := make(map[string]struct{})
		for _, fc := range plan.localDiff {
			fields = append(fields, fc.Field)
			seen[fc.Field] = struct{}{}
		}
		for _, fc := range plan.remoteDiff {
			if _, dup := seen[fc.Field]; !dup {
				fields = append(fields, fc.Field)
			}
		}
		sort.Strings(fields)

		for _, field := range fields {
			lc, localChanged := localByField[field]
			rc, remoteChanged := remoteByField[field]

			switch {
			case localChanged && remoteChanged:
				conflict, err := o.deps.Resolver.Resolve(plan.id, field,
					resolve.Input{Value: lc.After, Context: o.localContext(plan.id, field)},
					resolve.Input{Value: rc.After, Context: o.remoteContext(plan.id, field, rc.After, pass)},
					o.strategy)
				if err != nil {
					return err
				}
				if conflict.Outcome != record.OutcomeNone {
					res.Conflicts++
				}
				o.planConflict(plan, field, &conflict, res)
				plan.conflicts = append(plan.conflicts, conflict)

			case localChanged:
				plan.applyRemote[field] = lc.After
				res.FieldsCarried++

			case remoteChanged:
				plan.applyLocal[field] = rc.After
				res.FieldsCarried++
			}
		}
	}
	return nil
}

// planConflict records where a resolved conflict's value must be written.
func (o *Orchestrator) planConflict(plan *entityPlan, field string, c *record.Conflict, res *Result) {
	switch c.Outcome {
	case record.OutcomeNone:
		// Same value arrived on both sides independently; adopt it into
		// the baseline without writing anything.
		return

	case record.OutcomeOverride:
		res.Overrides++
		if c.Winner == record.SideLocal {
			plan.applyRemote[field] = c.LocalValue
		} else {
			plan.applyLocal[field] = c.RemoteValue
		}

	case record.OutcomeSuperposed:
		res.Superposed++
		cell := resolve.Cell(c)
		plan.applyLocal[field] = cell
		if o.dir != RemoteToLocal {
			// The remote format cannot represent superposition; it gets
			// the dominant value and the collapse is audited on the
			// conflict.
			plan.applyRemote[field] = cell.DominantValue()
			c.RemoteCollapsed = true
		}
	}
}

// apply writes merged values to whichever side did not already have them,
// honoring the configured direction.
func (o *Orchestrator) apply(ctx context.Context, res *Result, pass *passState) error {
	for _, plan := range pass.plans {
		if o.dir != LocalToRemote && len(plan.applyLocal) > 0 {
			if err := o.deps.Workspace.Apply(ctx, plan.id, plan.applyLocal); err != nil {
				return err
			}
			res.AppliedLocal += len(plan.applyLocal)
		}
		if o.dir != RemoteToLocal && len(plan.applyRemote) > 0 {
			values := o.mergedRemote(plan, pass)
			if err := o.deps.Store.Write(ctx, o.deps.Table, remote.Record{ID: plan.id, Values: values}); err != nil {
				return err
			}
			res.AppliedRemote += len(plan.applyRemote)
		}
	}

	// The entity-level lists were already direction-filtered by diff.
	for _, id := range pass.deleted {
		if err := o.deps.Workspace.Remove(ctx, id); err != nil {
			return err
		}
		res.AppliedLocal++
	}
	for _, id := range pass.dropped {
		if err := o.deps.Store.Delete(ctx, o.deps.Table, id); err != nil {
			return err
		}
		res.AppliedRemote++
	}
	for _, id := range pass.rewrites {
		values := collapseCells(pass.local[id])
		if err := o.deps.Store.Write(ctx, o.deps.Table, remote.Record{ID: id, Values: values}); err != nil {
			return err
		}
		res.AppliedRemote++
	}
	return nil
}

// mergedRemote builds the full row written to the remote store: the
// fetched remote values overlaid with this pass's remote-bound fields.
func (o *Orchestrator) mergedRemote(plan *entityPlan, pass *passState) map[string]any {
	values := make(map[string]any)
	for k, v := range pass.remoteV[plan.id] {
		values[k] = v
	}
	for k, v := range plan.applyRemote {
		if v == nil {
			delete(values, k)
			continue
		}
		values[k] = v
	}
	return collapseCells(values)
}

// collapseCells replaces superposed cells with their dominant value for a
// store that cannot represent alternatives.
func collapseCells(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if cell, ok := record.IsSuperposed(v); ok {
			out[k] = cell.DominantValue()
			continue
		}
		out[k] = v
	}
	return out
}

// logPass appends one field-scoped sync record per applied change,
// updates the reconciliation baseline, and clears dirty flags. Dirty
// flags are only touched here, after Applying succeeded, so an aborted
// pass loses nothing.
func (o *Orchestrator) logPass(ctx context.Context, res *Result, pass *passState) error {
	agent, _ := o.deps.Identity.Current(ctx)
	now := o.now()

	for _, plan := range pass.plans {
		resolutionByField := make(map[string]*record.Resolution)
		for i := range plan.conflicts {
			c := &plan.conflicts[i]
			resolutionByField[c.Field] = &record.Resolution{
				Outcome:         c.Outcome,
				Strategy:        c.Strategy,
				Reason:          c.Reason,
				RemoteCollapsed: c.RemoteCollapsed,
			}
		}

		// Only what the direction let Applying write is logged and
		// folded into the baseline.
		appliedLocal := plan.applyLocal
		if o.dir == LocalToRemote {
			appliedLocal = nil
		}
		appliedRemote := plan.applyRemote
		if o.dir == RemoteToLocal {
			appliedRemote = nil
		}

		merged := overlay(pass.local[plan.id], appliedLocal)

		fields := make([]string, 0, len(appliedLocal)+len(appliedRemote))
		seen := make(map[string]struct{})
		for f := range appliedLocal {
			fields = append(fields, f)
			seen[f] = struct{}{}
		}
		for f := range appliedRemote {
			if _, dup := seen[f]; !dup {
				fields = append(fields, f)
			}
		}
		sort.Strings(fields)

		for _, field := range fields {
			rec := record.NewChangeRecord("entity", plan.id, record.ActionSync,
				fieldValue(plan.base, field), fieldValue(merged, field), agent, now)
			rec.Field = field
			rec.Resolution = resolutionByField[field]
			if err := o.deps.Log.Append(ctx, rec); err != nil {
				return err
			}
			res.RecordsLogged++
		}

		remoteState := pass.remoteV[plan.id]
		if len(appliedRemote) > 0 {
			remoteState = o.mergedRemote(plan, pass)
		}

		o.mu.Lock()
		o.baseline[plan.id] = merged
		o.remoteSums[plan.id] = checksum.Sum(remoteState)
		o.mu.Unlock()

		o.deps.Tracker.MarkClean(plan.id)
		res.EntitiesCleaned++
	}

	for _, id := range pass.deleted {
		rec := record.NewChangeRecord("entity", id, record.ActionDelete, pass.local[id], nil, agent, now)
		if err := o.deps.Log.Append(ctx, rec); err != nil {
			return err
		}
		res.RecordsLogged++

		o.mu.Lock()
		delete(o.baseline, id)
		delete(o.remoteSums, id)
		o.mu.Unlock()
		o.deps.Tracker.MarkClean(id)
		res.EntitiesCleaned++
	}

	for _, id := range pass.dropped {
		rec := record.NewChangeRecord("entity", id, record.ActionDelete, pass.remoteV[id], nil, agent, now)
		if err := o.deps.Log.Append(ctx, rec); err != nil {
			return err
		}
		res.RecordsLogged++

		o.mu.Lock()
		delete(o.baseline, id)
		delete(o.remoteSums, id)
		o.mu.Unlock()
		o.deps.Tracker.MarkClean(id)
		res.EntitiesCleaned++
	}

	for _, id := range pass.rewrites {
		values := pass.local[id]
		rec := record.NewChangeRecord("entity", id, record.ActionSync, nil, values, agent, now)
		if err := o.deps.Log.Append(ctx, rec); err != nil {
			return err
		}
		res.RecordsLogged++

		o.mu.Lock()
		o.baseline[id] = values
		o.remoteSums[id] = checksum.Sum(collapseCells(values))
		o.mu.Unlock()
		o.deps.Tracker.MarkClean(id)
		res.EntitiesCleaned++
	}

	return nil
}

// overlay copies base and applies the given field writes on top; a nil
// value removes the field.
func overlay(base, writes map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(writes))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range writes {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

func fieldValue(values map[string]any, field string) map[string]any {
	if values == nil {
		return nil
	}
	v, ok := values[field]
	if !ok {
		return nil
	}
	return map[string]any{field: v}
}

// localContext resolves the provenance of a local value: the workspace's
// own context when it provides one, otherwise a context synthesized from
// the entity's most recent tracked change.
func (o *Orchestrator) localContext(entityID, field string) *record.Context {
	if provider, ok := o.deps.Workspace.(ContextProvider); ok {
		if ctx := provider.ValueContext(entityID, field); ctx != nil {
			return ctx
		}
	}

	history := o.deps.Tracker.History(entityID)
	for i := len(history) - 1; i >= 0; i-- {
		rec := history[i]
		if rec.Field != "" && rec.Field != field {
			continue
		}
		if rec.Context != nil {
			return rec.Context
		}
		return &record.Context{
			Method:     record.MethodUnknown,
			CapturedAt: rec.CreatedAt,
			Agent:      rec.Agent,
		}
	}
	return record.SystemContext(o.now())
}

// remoteContext synthesizes the provenance of a fetched remote value.
func (o *Orchestrator) remoteContext(entityID, field string, value any, pass *passState) *record.Context {
	at, ok := pass.fetched[entityID]
	if !ok {
		at = o.now()
	}
	return o.remoteCtx(entityID, field, value, at)
}
