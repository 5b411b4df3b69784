package vsix

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.vsix"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
}

func TestOpen_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vsix")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("Open(non-zip) expected error")
	}
}

func TestReader_ListFiles(t *testing.T) {
	r := openTestVSIX(t, []entry{
		{name: "vss-extension.json", body: testManifest},
		{name: `buildTask\task.json`, body: testTask},
		{name: "images/", body: ""},
		{name: "images/icon.png", body: "png"},
	})

	got, err := r.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"buildTask/task.json", "images/icon.png", "vss-extension.json"}
	if !slices.Equal(got, want) {
		t.Errorf("ListFiles = %v, want %v", got, want)
	}
}

func TestReader_ListFiles_NullByteEntry(t *testing.T) {
	r := openTestVSIX(t, []entry{
		{name: "vss-extension.json", body: testManifest},
		{name: "evil\x00.txt", body: "x"},
	})

	_, err := r.ListFiles()
	if !errors.Is(err, ErrNullByte) || !IsSecurityError(err) {
		t.Errorf("ListFiles = %v, want null byte security error", err)
	}
}

func TestReader_ListFiles_TraversalEntryListedButNotReadable(t *testing.T) {
	r := openTestVSIX(t, []entry{
		{name: "vss-extension.json", body: testManifest},
		{name: "../evil.sh", body: "rm -rf /"},
	})

	files, err := r.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if !slices.Contains(files, "../evil.sh") {
		t.Errorf("ListFiles = %v, want ../evil.sh listed", files)
	}
	if _, err := r.ReadFile("../evil.sh"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("ReadFile(../evil.sh) = %v, want traversal error", err)
	}
}

func TestReader_ReadFile(t *testing.T) {
	r := openTestVSIX(t, standardEntries())

	data, err := r.ReadFile(`buildTask\index.js`)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "console.log('build');\n" {
		t.Errorf("ReadFile = %q", data)
	}

	for _, p := range []string{"/etc/passwd", "../x", "a\x00b", `C:\x`} {
		if _, err := r.ReadFile(p); !IsSecurityError(err) {
			t.Errorf("ReadFile(%q) = %v, want security error", p, err)
		}
	}
	if _, err := r.ReadFile("nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadFile(missing) = %v, want ErrNotFound", err)
	}
}

func TestReader_ReadText_StripsBOM(t *testing.T) {
	r := openTestVSIX(t, []entry{{name: "README.md", body: "\xEF\xBB\xBFhello"}})

	got, err := r.ReadText("README.md")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "hello" {
		t.Errorf("ReadText = %q, want %q", got, "hello")
	}
}

func TestReader_ReadExtensionManifest(t *testing.T) {
	r := openTestVSIX(t, standardEntries())

	m, err := r.ReadExtensionManifest()
	if err != nil {
		t.Fatalf("ReadExtensionManifest: %v", err)
	}
	if m.Identity() != "contoso.build-tasks" {
		t.Errorf("Identity = %q", m.Identity())
	}
	again, _ := r.ReadExtensionManifest()
	if again != m {
		t.Error("manifest not cached")
	}
	if p, _ := r.ManifestPath(); p != "vss-extension.json" {
		t.Errorf("ManifestPath = %q", p)
	}
}

func TestReader_ReadExtensionManifest_Fallback(t *testing.T) {
	r := openTestVSIX(t, []entry{{name: "extension.vsomanifest", body: testManifest}})

	m, err := r.ReadExtensionManifest()
	if err != nil {
		t.Fatalf("ReadExtensionManifest: %v", err)
	}
	if m.Publisher != "contoso" {
		t.Errorf("Publisher = %q", m.Publisher)
	}
	if p, _ := r.ManifestPath(); p != "extension.vsomanifest" {
		t.Errorf("ManifestPath = %q", p)
	}
}

func TestReader_ReadExtensionManifest_Errors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		r := openTestVSIX(t, []entry{{name: "readme.md", body: "x"}})
		if _, err := r.ReadExtensionManifest(); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("malformed", func(t *testing.T) {
		r := openTestVSIX(t, []entry{{name: "vss-extension.json", body: "{not json"}})
		_, err := r.ReadExtensionManifest()
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Path != "vss-extension.json" {
			t.Errorf("err = %v, want ParseError for vss-extension.json", err)
		}
	})
}

func TestReader_TasksInfo(t *testing.T) {
	r := openTestVSIX(t, standardEntries())

	tasks, err := r.TasksInfo()
	if err != nil {
		t.Fatalf("TasksInfo: %v", err)
	}
	// ghostTask has no task.json and is skipped; the hub is not a task.
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1: %+v", len(tasks), tasks)
	}
	task := tasks[0]
	if task.Name != "buildTask" || task.Path != "buildTask/task.json" || task.ContributionID != "build-task" {
		t.Errorf("task = %+v", task)
	}
	if task.Manifest.Name != "BuildTask" || task.Manifest.Version.String() != "1.0.0" {
		t.Errorf("task manifest = %+v", task.Manifest)
	}

	manifests, err := r.ReadTaskManifests()
	if err != nil || len(manifests) != 1 {
		t.Errorf("ReadTaskManifests = %v, %v", manifests, err)
	}
}

func TestReader_TasksInfo_Errors(t *testing.T) {
	t.Run("malformed task", func(t *testing.T) {
		entries := standardEntries()
		entries[3].body = "{broken"
		r := openTestVSIX(t, entries)
		var pe *ParseError
		if _, err := r.TasksInfo(); !errors.As(err, &pe) {
			t.Errorf("err = %v, want ParseError", err)
		}
	})
	t.Run("traversal in task name", func(t *testing.T) {
		r := openTestVSIX(t, []entry{{name: "vss-extension.json", body: `{
			"id": "x", "publisher": "p", "version": "1.0.0",
			"contributions": [{"id": "t", "type": "ms.vss-distributed-task.task", "properties": {"name": "../../etc"}}]
		}`}})
		if _, err := r.TasksInfo(); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("err = %v, want traversal error", err)
		}
	})
}

func TestReader_ReadTaskManifest_MissingIsNotFound(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	if _, err := r.ReadTaskManifest("ghostTask"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	tm, err := r.ReadTaskManifest("buildTask")
	if err != nil || tm.ID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("ReadTaskManifest = %+v, %v", tm, err)
	}
}

func TestReader_CloseIdempotent(t *testing.T) {
	r, err := Open(writeZip(t, standardEntries()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := r.ReadFile("vss-extension.json"); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadFile after Close = %v, want ErrClosed", err)
	}
}

func TestOpenDir(t *testing.T) {
	root := t.TempDir()
	for _, e := range standardEntries() {
		p := filepath.Join(root, filepath.FromSlash(e.name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(e.body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r, err := OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	if !r.IsDir() {
		t.Error("IsDir = false")
	}
	tasks, err := r.TasksInfo()
	if err != nil || len(tasks) != 1 {
		t.Fatalf("TasksInfo = %v, %v", tasks, err)
	}
	files, _ := r.ListFiles()
	if len(files) != len(standardEntries()) {
		t.Errorf("ListFiles = %v", files)
	}
}

func TestReader_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := openTestVSIX(t, standardEntries())
		if err := r.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		entries := standardEntries()
		entries[2].body = `{"manifestVersion": 1, "id": "bad id!", "publisher": "contoso", "version": "1.0.0"}`
		r := openTestVSIX(t, entries)
		err := r.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Validate = %v, want ValidationError", err)
		}
		if ve.Problems[0].Path != "vss-extension.json" {
			t.Errorf("problem path = %q", ve.Problems[0].Path)
		}
	})
	t.Run("invalid task", func(t *testing.T) {
		entries := standardEntries()
		entries[3].body = `{"id": "not-a-guid", "name": "BuildTask", "version": {"Major": 1, "Minor": 0, "Patch": 0}}`
		r := openTestVSIX(t, entries)
		var ve *ValidationError
		if err := r.Validate(); !errors.As(err, &ve) || ve.Problems[0].Path != "buildTask/task.json" {
			t.Errorf("Validate = %v, want task problem", err)
		}
	})
}
