// internal/audit/audit.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"license-workflow/internal/common/logger"
	"license-workflow/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

const (
	IndexAssignments = "workflow-assignments"
	IndexStatuses    = "workflow-statuses"
)

// Recorder mirrors ledger events into Elasticsearch for search and
// reporting. Postgres stays the source of truth; a failed mirror write is
// logged and dropped.
type Recorder interface {
	RecordAssignment(ctx context.Context, rec *models.AssignmentRecord)
	RecordStatusEvent(ctx context.Context, ev *models.StatusEvent)
}

type ESRecorder struct {
	client *elasticsearch.Client
	logger logger.Logger
}

func NewESRecorder(client *elasticsearch.Client, log logger.Logger) *ESRecorder {
	return &ESRecorder{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

func (r *ESRecorder) RecordAssignment(ctx context.Context, rec *models.AssignmentRecord) {
	doc := map[string]interface{}{
		"applicationId":        rec.ApplicationID,
		"officerId":            rec.OfficerID,
		"previousOfficerId":    rec.PreviousOfficerID,
		"action":               rec.Action,
		"role":                 rec.Role,
		"workloadAtAssignment": rec.WorkloadAtAssignment,
		"reason":               rec.Reason,
		"assignedAt":           rec.AssignedAt.UTC().Format(time.RFC3339),
	}
	r.index(ctx, IndexAssignments, rec.ID, doc)
}

func (r *ESRecorder) RecordStatusEvent(ctx context.Context, ev *models.StatusEvent) {
	doc := map[string]interface{}{
		"applicationId": ev.ApplicationID,
		"fromStatus":    ev.FromStatus,
		"toStatus":      ev.ToStatus,
		"officerId":     ev.OfficerID,
		"remarks":       ev.Remarks,
		"createdAt":     ev.CreatedAt.UTC().Format(time.RFC3339),
	}
	r.index(ctx, IndexStatuses, ev.ID, doc)
}

func (r *ESRecorder) index(ctx context.Context, index, docID string, doc map[string]interface{}) {
	if docID == "" {
		docID = uuid.New().String()
	}

	body, err := json.Marshal(doc)
	if err != nil {
		r.logger.Error("marshal audit document", map[string]interface{}{
			"error": err,
			"index": index,
		})
		return
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: docID,
		Body:       strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		r.logger.Error("index audit document", map[string]interface{}{
			"error": err,
			"index": index,
			"docId": docID,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logger.Error("index audit document", map[string]interface{}{
			"error": fmt.Errorf("elasticsearch: %s", res.Status()),
			"index": index,
			"docId": docID,
		})
	}
}

// NopRecorder discards everything, used when the audit mirror is disabled.
type NopRecorder struct{}

func (NopRecorder) RecordAssignment(context.Context, *models.AssignmentRecord) {}
func (NopRecorder) RecordStatusEvent(context.Context, *models.StatusEvent)     {}
