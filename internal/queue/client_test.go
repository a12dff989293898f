package queue

import (
	"encoding/json"
	"testing"
)

func TestTask_IsSingleShot(t *testing.T) {
	single := Task{Input: map[string]interface{}{"to_email": "a@b.com"}}
	if !single.IsSingleShot() {
		t.Error("task with nil JobID should be single-shot")
	}

	jobID := 7
	bulk := Task{Input: map[string]interface{}{"to_email": "a@b.com"}, JobID: &jobID}
	if bulk.IsSingleShot() {
		t.Error("task with a JobID should not be single-shot")
	}
}

func TestTask_UnmarshalMatchesWireShape(t *testing.T) {
	raw := []byte(`{"input":{"to_email":"a@b.com"},"job_id":3,"webhook":{"on_each_email":{"url":"https://example.com/hook","extra":{"k":"v"}}}}`)

	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.JobID == nil || *task.JobID != 3 {
		t.Fatalf("JobID = %v, want 3", task.JobID)
	}
	if task.Webhook == nil || task.Webhook.OnEachEmail == nil {
		t.Fatal("expected webhook.on_each_email to be populated")
	}
	if task.Webhook.OnEachEmail.URL != "https://example.com/hook" {
		t.Errorf("webhook URL = %q, want %q", task.Webhook.OnEachEmail.URL, "https://example.com/hook")
	}
}

func TestTask_NullJobIDIsSingleShot(t *testing.T) {
	raw := []byte(`{"input":{"to_email":"a@b.com"},"job_id":null,"webhook":null}`)

	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !task.IsSingleShot() {
		t.Error("explicit null job_id should still be single-shot")
	}
}
