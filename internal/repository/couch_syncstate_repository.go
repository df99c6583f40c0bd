package repository

import (
	"context"
	"fmt"
	"time"

	"evernote-syncd/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchSyncStateRepo struct {
	client *kivik.Client
	dbName string
}

// NewCouchSyncStateRepository keeps sync state in CouchDB, for
// deployments that already run one and want sync history queryable
// alongside their other documents.
func NewCouchSyncStateRepository(client *kivik.Client, dbName string) SyncStateRepository {
	return &couchSyncStateRepo{client: client, dbName: dbName}
}

type revisionDoc struct {
	Rev      string `json:"_rev,omitempty"`
	ServerID string `json:"server_id"`
	Revision int    `json:"revision"`
	Updated  string `json:"updated_at"`
}

func (r *couchSyncStateRepo) ConsumedRevision(serverID string) (int, error) {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("syncstate:%s", serverID)
	row := db.Get(context.Background(), docID)

	var doc revisionDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read consumed revision: %w", err)
	}
	return doc.Revision, nil
}

func (r *couchSyncStateRepo) SetConsumedRevision(serverID string, revision int) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("syncstate:%s", serverID)

	doc := revisionDoc{
		ServerID: serverID,
		Revision: revision,
		Updated:  time.Now().Format(time.RFC3339),
	}

	var existing revisionDoc
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existing); err == nil {
		doc.Rev = existing.Rev
	}

	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to store consumed revision: %w", err)
	}
	return nil
}

func (r *couchSyncStateRepo) RecordRun(run *domain.SyncRun) error {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("syncrun:%s", run.ID)
	if _, err := db.Put(context.Background(), docID, run); err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

func (r *couchSyncStateRepo) ListRuns(serverID string, limit int) ([]*domain.SyncRun, error) {
	db := r.client.DB(r.dbName)

	selector := map[string]interface{}{
		"server_id": serverID,
	}
	if serverID == "" {
		selector = map[string]interface{}{
			"server_id": map[string]interface{}{"$exists": true},
		}
	}
	query := map[string]interface{}{
		"selector": selector,
		"sort":     []map[string]string{{"started_at": "desc"}},
	}
	if limit > 0 {
		query["limit"] = limit
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		if err := rows.ScanDoc(&run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}
