package vsix

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

type entry struct {
	name string
	body string
}

const testManifest = `{
  "manifestVersion": 1,
  "id": "build-tasks",
  "publisher": "contoso",
  "version": "1.2.3",
  "name": "Build Tasks",
  "description": "Tasks for builds",
  "galleryFlags": ["Preview"],
  "icons": {"default": "images/icon.png"},
  "contributions": [
    {
      "id": "build-task",
      "type": "ms.vss-distributed-task.task",
      "targets": ["ms.vss-distributed-task.tasks"],
      "properties": {"name": "buildTask"}
    },
    {
      "id": "missing-task",
      "type": "ms.vss-distributed-task.task",
      "properties": {"name": "ghostTask"}
    },
    {
      "id": "hub",
      "type": "ms.vss-web.hub",
      "properties": {"name": "Hub"}
    }
  ],
  "files": [{"path": "buildTask"}]
}`

const testTask = `{
  "id": "11111111-2222-3333-4444-555555555555",
  "name": "BuildTask",
  "friendlyName": "Build Task",
  "version": {"Major": 1, "Minor": 0, "Patch": 0},
  "instanceNameFormat": "Build $(project)",
  "inputs": [{"name": "project", "type": "string", "required": true}]
}`

const testVSIXManifest = `<?xml version="1.0" encoding="utf-8"?>
<PackageManifest Version="2.0.0" xmlns="http://schemas.microsoft.com/developer/vsx-schema/2011">
  <Metadata>
    <Identity Language="en-US" Id="build-tasks" Version="1.2.3" Publisher="contoso"/>
    <DisplayName>Build Tasks</DisplayName>
    <Description xml:space="preserve">Tasks for builds</Description>
  </Metadata>
</PackageManifest>
`

const testContentTypes = `<?xml version="1.0" encoding="utf-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="json" ContentType="application/json"/><Default Extension="vsixmanifest" ContentType="text/xml"/><Default Extension="xml" ContentType="text/xml"/></Types>
`

func standardEntries() []entry {
	return []entry{
		{name: ContentTypesPath, body: testContentTypes},
		{name: VSIXManifestPath, body: testVSIXManifest},
		{name: "vss-extension.json", body: testManifest},
		{name: "buildTask/task.json", body: testTask},
		{name: "buildTask/index.js", body: "console.log('build');\n"},
	}
}

// writeZip writes entries, in order and with raw names, to a new archive.
func writeZip(t *testing.T, entries []entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.vsix")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		if err != nil {
			t.Fatalf("create entry %q: %v", e.name, err)
		}
		if _, err := io.WriteString(w, e.body); err != nil {
			t.Fatalf("write entry %q: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func openTestVSIX(t *testing.T, entries []entry) *Reader {
	t.Helper()
	r, err := Open(writeZip(t, entries))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// readZip returns name -> content for every entry in the archive at path.
func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer func() { _ = zr.Close() }()

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %q: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read %q: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}
