package vsix

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/pithecene-io/vsixctl/types"
)

func TestWriter_RoundTripUnchanged(t *testing.T) {
	entries := standardEntries()
	r := openTestVSIX(t, entries)
	w := NewWriter(r)
	t.Cleanup(func() { _ = w.Close() })

	out := filepath.Join(t.TempDir(), "out.vsix")
	if err := w.WriteToFile(out); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	got := readZip(t, out)
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d: %v", len(got), len(entries), sortedKeys(got))
	}
	for _, e := range entries {
		if got[e.name] != e.body {
			t.Errorf("entry %q changed", e.name)
		}
	}
}

func TestEditor_SetFileRejectsUnsafePaths(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r)

	for _, p := range []string{"../evil", "/abs", `C:\x`, "a\x00b"} {
		if err := ed.SetFile(p, []byte("x")); !IsSecurityError(err) {
			t.Errorf("SetFile(%q) = %v, want security error", p, err)
		}
		if err := ed.AddFile(p, []byte("x")); !IsSecurityError(err) {
			t.Errorf("AddFile(%q) = %v, want security error", p, err)
		}
	}
	if n := len(ed.Modifications()); n != 0 {
		t.Errorf("modifications recorded after rejection: %d", n)
	}
}

func TestWriter_RejectsBypassedModification(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r)
	ed.Modifications()["../evil.sh"] = &Modification{Kind: ModAdd, Path: "../evil.sh", Content: []byte("x")}

	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })

	dir := t.TempDir()
	out := filepath.Join(dir, "out.vsix")
	err := w.WriteToFile(out)
	if !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("WriteToFile = %v, want traversal error", err)
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("output dir not empty after failure: %v", names)
	}

	if _, err := w.WriteToFilesystem(filepath.Join(dir, "tree")); !IsSecurityError(err) {
		t.Errorf("WriteToFilesystem = %v, want security error", err)
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("filesystem output created before validation: %v", names)
	}
}

func TestWriter_RejectsBypassedRemove(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r)
	ed.RemoveFile("/etc/passwd")

	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })
	if err := w.WriteToFile(filepath.Join(t.TempDir(), "out.vsix")); !IsSecurityError(err) {
		t.Errorf("WriteToFile = %v, want security error", err)
	}
}

func TestWriter_RejectsUnsafeOriginalEntry(t *testing.T) {
	entries := append(standardEntries(), entry{name: "../escape.txt", body: "x"})
	r := openTestVSIX(t, entries)
	w := NewWriter(r)
	t.Cleanup(func() { _ = w.Close() })

	dir := t.TempDir()
	if err := w.WriteToFile(filepath.Join(dir, "out.vsix")); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("WriteToFile = %v, want traversal error", err)
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("partial output left behind: %v", names)
	}
}

func TestWriter_AppliesManifestOverrides(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r).
		SetPublisher("fabrikam").
		SetExtensionID("ci-tasks").
		SetVersion("2.0.1").
		SetName("CI & Tasks").
		SetDescription("Rebuilt")

	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })
	out := filepath.Join(t.TempDir(), "out.vsix")
	if err := w.WriteToFile(out); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	got := readZip(t, out)

	var m types.ExtensionManifest
	if err := json.Unmarshal([]byte(got["vss-extension.json"]), &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Identity() != "fabrikam.ci-tasks" || m.Version != "2.0.1" || m.Name != "CI & Tasks" || m.Description != "Rebuilt" {
		t.Errorf("manifest = %+v", m)
	}
	if _, ok := m.Extra["icons"]; !ok {
		t.Error("unknown key icons dropped from manifest")
	}

	xml := got[VSIXManifestPath]
	for _, want := range []string{
		`Id="ci-tasks"`, `Version="2.0.1"`, `Publisher="fabrikam"`,
		"<DisplayName>CI &amp; Tasks</DisplayName>",
		`<Description xml:space="preserve">Rebuilt</Description>`,
		`Language="en-US"`,
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("vsixmanifest missing %q:\n%s", want, xml)
		}
	}

	// The reader's cached manifest is left alone.
	orig, _ := r.ReadExtensionManifest()
	if orig.Publisher != "contoso" {
		t.Errorf("reader manifest mutated: %q", orig.Publisher)
	}
}

func TestWriter_TaskOverrides(t *testing.T) {
	r := openTestVSIX(t, standardEntries())

	t.Run("explicit version by task name", func(t *testing.T) {
		ed := NewEditor(r)
		if err := ed.UpdateTaskVersion("BuildTask", "3.4.5"); err != nil {
			t.Fatalf("UpdateTaskVersion: %v", err)
		}
		ed.UpdateTaskID("buildTask", "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
		task := writeAndReadTask(t, ed)
		if task.Version.String() != "3.4.5" || task.ID != "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
			t.Errorf("task = %+v", task)
		}
		if _, ok := task.Extra["instanceNameFormat"]; !ok {
			t.Error("unknown task key dropped")
		}
	})

	t.Run("sync version and derive id", func(t *testing.T) {
		ed := NewEditor(r)
		if err := ed.ApplyOptions(Options{Version: "4.5.6", UpdateTasksVersion: true, UpdateTasksID: true}); err != nil {
			t.Fatalf("ApplyOptions: %v", err)
		}
		task := writeAndReadTask(t, ed)
		if task.Version.String() != "4.5.6" {
			t.Errorf("task version = %s, want 4.5.6", task.Version)
		}
		if want := DeriveTaskID("contoso", "build-tasks", "buildTask"); task.ID != want {
			t.Errorf("task id = %s, want %s", task.ID, want)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		ed := NewEditor(r)
		ed.UpdateTaskID("nope", "x")
		w := ed.ToWriter()
		t.Cleanup(func() { _ = w.Close() })
		if err := w.WriteToFile(filepath.Join(t.TempDir(), "out.vsix")); !errors.Is(err, ErrNotFound) {
			t.Errorf("WriteToFile = %v, want ErrNotFound", err)
		}
	})

	t.Run("bad version", func(t *testing.T) {
		if err := NewEditor(r).UpdateTaskVersion("buildTask", "1.0"); !errors.Is(err, types.ErrInvalidVersion) {
			t.Errorf("UpdateTaskVersion = %v, want ErrInvalidVersion", err)
		}
	})
}

func writeAndReadTask(t *testing.T, ed *Editor) types.TaskManifest {
	t.Helper()
	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })
	out := filepath.Join(t.TempDir(), "out.vsix")
	if err := w.WriteToFile(out); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	var task types.TaskManifest
	if err := json.Unmarshal([]byte(readZip(t, out)["buildTask/task.json"]), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func TestDeriveTaskID_Deterministic(t *testing.T) {
	a := DeriveTaskID("contoso", "ext", "task")
	b := DeriveTaskID("contoso", "ext", "task")
	c := DeriveTaskID("contoso", "ext", "other")
	if a != b {
		t.Errorf("DeriveTaskID not deterministic: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different tasks derived the same id")
	}
	if len(a) != 36 || a[14] != '5' {
		t.Errorf("DeriveTaskID = %s, want a version 5 UUID", a)
	}
}

func TestWriter_FileModifications(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r)
	if err := ed.SetFile("buildTask/index.js", []byte("patched")); err != nil {
		t.Fatal(err)
	}
	if err := ed.AddFile(`docs\README.md`, []byte("# docs")); err != nil {
		t.Fatal(err)
	}
	if err := ed.AddFile("LICENSE", []byte("MIT")); err != nil {
		t.Fatal(err)
	}
	if err := ed.SetFile("buildTask/empty.txt", nil); err != nil {
		t.Fatal(err)
	}
	ed.RemoveFile(`buildTask\task.json`)

	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })
	out := filepath.Join(t.TempDir(), "out.vsix")
	if err := w.WriteToFile(out); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	got := readZip(t, out)

	if got["buildTask/index.js"] != "patched" {
		t.Errorf("index.js = %q", got["buildTask/index.js"])
	}
	if got["docs/README.md"] != "# docs" {
		t.Errorf("README.md = %q", got["docs/README.md"])
	}
	if v, ok := got["buildTask/empty.txt"]; !ok || v != "" {
		t.Errorf("empty.txt = %q, %v", v, ok)
	}
	if _, ok := got["buildTask/task.json"]; ok {
		t.Error("removed task.json still present")
	}

	ct := got[ContentTypesPath]
	for _, want := range []string{`Extension="md"`, `Extension="js"`, `Extension="txt"`, `PartName="/LICENSE"`, `Extension="json"`} {
		if !strings.Contains(ct, want) {
			t.Errorf("content types missing %s:\n%s", want, ct)
		}
	}
}

func TestWriter_ContentTypesUntouchedWhenCovered(t *testing.T) {
	entries := []entry{
		{name: ContentTypesPath, body: testContentTypes},
		{name: "vss-extension.json", body: testManifest},
	}
	r := openTestVSIX(t, entries)
	w := NewWriter(r)
	t.Cleanup(func() { _ = w.Close() })
	out := filepath.Join(t.TempDir(), "out.vsix")
	if err := w.WriteToFile(out); err != nil {
		t.Fatal(err)
	}
	if got := readZip(t, out)[ContentTypesPath]; got != testContentTypes {
		t.Errorf("content types rewritten:\n%s", got)
	}
}

func TestWriter_VisibilityAndPricing(t *testing.T) {
	tests := []struct {
		vis        Visibility
		pricing    Pricing
		wantPublic bool
		wantFlags  []string
	}{
		{vis: VisibilityPublic, pricing: PricingFree, wantPublic: true, wantFlags: []string{"Free"}},
		{vis: VisibilityPublicPreview, pricing: PricingDefault, wantPublic: true, wantFlags: []string{"Preview"}},
		{vis: VisibilityPrivate, pricing: PricingPaid, wantPublic: false, wantFlags: []string{"Paid"}},
		{vis: VisibilityPrivatePreview, pricing: PricingTrial, wantPublic: false, wantFlags: []string{"Preview", "Trial"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.vis)+"/"+string(tt.pricing), func(t *testing.T) {
			r := openTestVSIX(t, standardEntries())
			w := NewEditor(r).SetVisibility(tt.vis).SetPricing(tt.pricing).ToWriter()
			t.Cleanup(func() { _ = w.Close() })

			out := filepath.Join(t.TempDir(), "out.vsix")
			if err := w.WriteToFile(out); err != nil {
				t.Fatalf("WriteToFile: %v", err)
			}
			var m types.ExtensionManifest
			if err := json.Unmarshal([]byte(readZip(t, out)["vss-extension.json"]), &m); err != nil {
				t.Fatal(err)
			}
			if m.Public == nil || *m.Public != tt.wantPublic {
				t.Errorf("public = %v, want %v", m.Public, tt.wantPublic)
			}
			if !slices.Equal(m.GalleryFlags, tt.wantFlags) {
				t.Errorf("galleryFlags = %v, want %v", m.GalleryFlags, tt.wantFlags)
			}
		})
	}
}

func TestApplyOptions_RejectsUnknownEnums(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r)
	if err := ed.ApplyOptions(Options{Visibility: "secret"}); err == nil {
		t.Error("unknown visibility accepted")
	}
	if err := ed.ApplyOptions(Options{Pricing: "cheap", Publisher: "x"}); err == nil {
		t.Error("unknown pricing accepted")
	}
	if !ed.Overrides().IsEmpty() {
		t.Errorf("overrides applied despite error: %+v", ed.Overrides())
	}
}

func TestWriter_OverridesPath(t *testing.T) {
	r := openTestVSIX(t, standardEntries())

	empty := NewWriter(r)
	if p, err := empty.OverridesPath(); err != nil || p != "" {
		t.Errorf("OverridesPath with no overrides = %q, %v", p, err)
	}
	_ = empty.Close()

	w := NewEditor(r).SetPublisher("fabrikam").SetVersion("9.9.9").SetVisibility(VisibilityPublic).ToWriter()
	p, err := w.OverridesPath()
	if err != nil {
		t.Fatalf("OverridesPath: %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["publisher"] != "fabrikam" || doc["version"] != "9.9.9" || doc["public"] != true {
		t.Errorf("overrides = %v", doc)
	}
	if flags, _ := doc["galleryFlags"].([]any); len(flags) != 0 {
		t.Errorf("galleryFlags = %v, want Preview cleared", flags)
	}
	if again, _ := w.OverridesPath(); again != p {
		t.Errorf("OverridesPath not stable: %q vs %q", again, p)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("overrides file survives Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := w.OverridesPath(); !errors.Is(err, ErrClosed) {
		t.Errorf("OverridesPath after Close = %v, want ErrClosed", err)
	}
}

func TestWriter_WriteToFilesystem_TempTree(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r).SetVersion("1.2.4")
	if err := ed.AddFile("extra/notes.txt", []byte("hi")); err != nil {
		t.Fatal(err)
	}
	w := ed.ToWriter()

	root, err := w.WriteToFilesystem("")
	if err != nil {
		t.Fatalf("WriteToFilesystem: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "extra", "notes.txt"))
	if err != nil || string(data) != "hi" {
		t.Errorf("notes.txt = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(root, "buildTask", "index.js")); err != nil {
		t.Errorf("unchanged entry not materialized: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("temp tree survives Close: %v", err)
	}
}

func TestWriter_WriteToFilesystem_InPlace(t *testing.T) {
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
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })

	ed := NewEditor(r).SetPublisher("fabrikam").RemoveFile("buildTask/index.js")
	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })

	got, err := w.WriteToFilesystem(root)
	if err != nil {
		t.Fatalf("WriteToFilesystem: %v", err)
	}
	if got != root {
		t.Errorf("root = %q, want %q", got, root)
	}
	if _, err := os.Stat(filepath.Join(root, "buildTask", "index.js")); !os.IsNotExist(err) {
		t.Errorf("removed file still present: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "vss-extension.json"))
	if !strings.Contains(string(data), `"publisher": "fabrikam"`) {
		t.Errorf("manifest not patched in place:\n%s", data)
	}
}

func TestWriter_WriteToFilesystem_RejectsSymlinkedDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "vss-extension.json"), []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "assets")); err != nil {
		t.Fatal(err)
	}
	r, err := OpenDir(root)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })

	ed := NewEditor(r).SetPublisher("fabrikam")
	if err := ed.AddFile("assets/escaped.txt", []byte("escaped")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })

	_, err = w.WriteToFilesystem(root)
	if !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("WriteToFilesystem err = %v, want ErrPathTraversal", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "escaped.txt")); !os.IsNotExist(err) {
		t.Errorf("file written through symlink: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "vss-extension.json"))
	if strings.Contains(string(data), "fabrikam") {
		t.Error("manifest rewritten before the rejected path was detected")
	}
}

func TestWriter_Files(t *testing.T) {
	r := openTestVSIX(t, standardEntries())
	ed := NewEditor(r).RemoveFile(VSIXManifestPath)
	if err := ed.AddFile("z.txt", nil); err != nil {
		t.Fatal(err)
	}
	w := ed.ToWriter()
	t.Cleanup(func() { _ = w.Close() })

	files, err := w.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{ContentTypesPath, "vss-extension.json", "buildTask/task.json", "buildTask/index.js", "z.txt"}
	if !slices.Equal(files, want) {
		t.Errorf("Files = %v, want %v", files, want)
	}
}
