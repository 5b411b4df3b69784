package types

import (
	"encoding/json"
	"strings"
	"testing"
)

const sampleExtension = `{
  "manifestVersion": 1,
  "id": "build-tasks",
  "publisher": "contoso",
  "version": "1.0.0",
  "name": "Build Tasks",
  "icons": {"default": "images/icon.png"},
  "targets": [{"id": "Microsoft.VisualStudio.Services"}],
  "contributions": [
    {
      "id": "compile-task",
      "type": "ms.vss-distributed-task.task",
      "targets": ["ms.vss-distributed-task.tasks"],
      "properties": {"name": "CompileTask", "weight": 12345678901234567890}
    },
    {
      "id": "hub",
      "type": "ms.vss-web.hub",
      "properties": {"name": "Hub"}
    }
  ],
  "files": [{"path": "CompileTask", "flatten": true}]
}`

func TestExtensionManifest_RoundTripKeepsUnknownKeys(t *testing.T) {
	var m ExtensionManifest
	if err := json.Unmarshal([]byte(sampleExtension), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m.ID != "build-tasks" || m.Publisher != "contoso" || m.Version != "1.0.0" {
		t.Fatalf("identity fields not decoded: %+v", m)
	}
	if _, ok := m.Extra["icons"]; !ok {
		t.Error("icons should be kept in Extra")
	}
	if _, ok := m.Extra["id"]; ok {
		t.Error("known key id must not be duplicated in Extra")
	}

	m.Version = "2.0.0"
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	for _, key := range []string{"icons", "targets", "contributions", "files"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("key %q lost on round-trip", key)
		}
	}
	if string(decoded["version"]) != `"2.0.0"` {
		t.Errorf("version = %s, want \"2.0.0\"", decoded["version"])
	}
	// Large integers inside properties survive untouched.
	if !strings.Contains(string(out), "12345678901234567890") {
		t.Error("contribution property number was not preserved verbatim")
	}
	// Unknown key on a nested file entry survives.
	if !strings.Contains(string(out), `"flatten":true`) {
		t.Error("file entry extra key was not preserved")
	}
}

func TestManifests_RoundTripKeepsEmptyKnownKeys(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		decode  func([]byte) ([]byte, error)
		want    []string
		notWant []string
	}{
		{
			name: "extension",
			src: `{"id":"tools","publisher":"acme","version":"1.0.0","description":"","tags":[],` +
				`"contributions":[{"id":"c","type":"t","targets":[]}],"files":[{"path":"a","addressable":false}]}`,
			decode: func(data []byte) ([]byte, error) {
				var m ExtensionManifest
				if err := json.Unmarshal(data, &m); err != nil {
					return nil, err
				}
				m.Version = "1.0.1"
				return json.Marshal(m)
			},
			want:    []string{`"description":""`, `"tags":[]`, `"targets":[]`, `"addressable":false`, `"version":"1.0.1"`},
			notWant: []string{`"name"`, `"categories"`, `"packagePath"`},
		},
		{
			name: "task",
			src: `{"id":"x","name":"Build","friendlyName":"","version":{"Major":1,"Minor":0,"Patch":0},` +
				`"inputs":[{"name":"cfg","label":"","required":false}]}`,
			decode: func(data []byte) ([]byte, error) {
				var m TaskManifest
				if err := json.Unmarshal(data, &m); err != nil {
					return nil, err
				}
				m.Version.Patch = 3
				return json.Marshal(m)
			},
			want:    []string{`"friendlyName":""`, `"label":""`, `"required":false`, `"Patch":3`},
			notWant: []string{`"description"`, `"helpMarkDown"`, `"defaultValue"`},
		},
		{
			name: "emptied after decode",
			src:  `{"id":"tools","publisher":"acme","version":"1.0.0","tags":["a","b"]}`,
			decode: func(data []byte) ([]byte, error) {
				var m ExtensionManifest
				if err := json.Unmarshal(data, &m); err != nil {
					return nil, err
				}
				m.Tags = nil
				return json.Marshal(m)
			},
			want: []string{`"tags":[]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.decode([]byte(tt.src))
			if err != nil {
				t.Fatalf("round trip: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(out), w) {
					t.Errorf("output missing %s: %s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(string(out), w) {
					t.Errorf("output should not contain %s: %s", w, out)
				}
			}
		})
	}
}

func TestExtensionManifest_TaskContributions(t *testing.T) {
	var m ExtensionManifest
	if err := json.Unmarshal([]byte(sampleExtension), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	tasks := m.TaskContributions()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task contribution, got %d", len(tasks))
	}
	if tasks[0].TaskDir() != "CompileTask" {
		t.Errorf("TaskDir = %q, want CompileTask", tasks[0].TaskDir())
	}
}

func TestExtensionManifest_CheckIdentity(t *testing.T) {
	tests := []struct {
		name    string
		m       ExtensionManifest
		wantErr string
	}{
		{"complete", ExtensionManifest{ID: "a", Publisher: "p", Version: "1.0.0"}, ""},
		{"missing id", ExtensionManifest{Publisher: "p", Version: "1.0.0"}, "id is empty"},
		{"missing publisher", ExtensionManifest{ID: "a", Version: "1.0.0"}, "publisher is empty"},
		{"missing version", ExtensionManifest{ID: "a", Publisher: "p"}, "version is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.CheckIdentity()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestTaskManifest_VersionAcceptsStrings(t *testing.T) {
	data := `{"id":"6a0b3e6c-0000-4000-8000-000000000001","name":"CompileTask",
		"version":{"Major":"1","Minor":4,"Patch":"12"},
		"execution":{"Node16":{"target":"index.js"}},
		"inputs":[{"name":"project","type":"filePath","required":true,"defaultValue":false,"visibleRule":"x = y"}]}`

	var task TaskManifest
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.Version != (TaskVersion{Major: 1, Minor: 4, Patch: 12}) {
		t.Errorf("Version = %v, want 1.4.12", task.Version)
	}
	if _, ok := task.Extra["execution"]; !ok {
		t.Error("execution should be kept in Extra")
	}
	if len(task.Inputs) != 1 || task.Inputs[0].Extra["visibleRule"] == nil {
		t.Error("input extra key visibleRule should be preserved")
	}

	out, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"Major":1`) {
		t.Errorf("version should be re-encoded numerically: %s", out)
	}
	if !strings.Contains(string(out), `"defaultValue":false`) {
		t.Errorf("non-string defaultValue should be preserved: %s", out)
	}
}

func TestTaskVersion_RejectsGarbage(t *testing.T) {
	var v TaskVersion
	err := json.Unmarshal([]byte(`{"Major":"one","Minor":0,"Patch":0}`), &v)
	if err == nil {
		t.Fatal("expected error for non-numeric Major")
	}
}

func TestToolResult_Helpers(t *testing.T) {
	var nilResult *ToolResult
	if nilResult.Succeeded() || nilResult.HasJSON() {
		t.Error("nil result should report neither success nor JSON")
	}

	r := &ToolResult{ExitCode: 0, JSON: map[string]any{"status": "ok"}}
	if !r.Succeeded() || !r.HasJSON() {
		t.Error("expected success with JSON")
	}
	if r.JSONObject()["status"] != "ok" {
		t.Error("JSONObject should expose the payload")
	}
}
