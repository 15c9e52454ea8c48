package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLAuditStore persists decision logs in SQL.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *permit.AuditEntry) error {
	metaB, _ := json.Marshal(entry.Metadata)
	q := `INSERT INTO audit_log(id, timestamp, tenant_id, principal_id, permission_key, allowed, source, trace_id, metadata_json)
	      VALUES(:id, :timestamp, :tenant_id, :principal_id, :permission_key, :allowed, :source, :trace_id, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             entry.ID,
		"timestamp":      entry.Timestamp,
		"tenant_id":      entry.TenantID,
		"principal_id":   entry.PrincipalID,
		"permission_key": entry.PermissionKey,
		"allowed":        boolToInt(entry.Allowed),
		"source":         entry.Source,
		"trace_id":       entry.TraceID,
		"metadata_json":  string(metaB),
	})
	return infra(err)
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter permit.AuditFilter) ([]*permit.AuditEntry, error) {
	q := `SELECT id, timestamp, tenant_id, principal_id, permission_key, allowed, source, trace_id, metadata_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.TenantID != "" {
		q += " AND tenant_id = :tenant_id"
		params["tenant_id"] = filter.TenantID
	}
	if filter.PrincipalID != "" {
		q += " AND principal_id = :principal_id"
		params["principal_id"] = filter.PrincipalID
	}
	if filter.PermissionKey != "" {
		q += " AND permission_key = :permission_key"
		params["permission_key"] = filter.PermissionKey
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	q += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]*permit.AuditEntry, 0)
	for r.Next() {
		entry := &permit.AuditEntry{}
		var timestampRaw interface{}
		var allowedInt int
		var metaJSON string
		if err := r.Scan(&entry.ID, &timestampRaw, &entry.TenantID, &entry.PrincipalID, &entry.PermissionKey, &allowedInt, &entry.Source, &entry.TraceID, &metaJSON); err != nil {
			return nil, infra(err)
		}
		if t := scanTime(timestampRaw); t != nil {
			entry.Timestamp = *t
		}
		entry.Allowed = allowedInt != 0
		_ = json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		out = append(out, entry)
	}
	return out, nil
}
