package vsix

import (
	"bytes"
	"encoding/xml"
	"mime"
	"path"
	"regexp"
	"sort"
	"strings"
)

const contentTypesNamespace = "http://schemas.openxmlformats.org/package/2006/content-types"

type contentTypes struct {
	XMLName   xml.Name          `xml:"Types"`
	Xmlns     string            `xml:"xmlns,attr"`
	Defaults  []contentDefault  `xml:"Default"`
	Overrides []contentOverride `xml:"Override"`
}

type contentDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type contentOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// patchContentTypes registers any file extension in paths that the
// [Content_Types].xml document does not cover yet. The bool is false, and
// data is returned as is, when nothing is missing.
func patchContentTypes(data []byte, paths []string) ([]byte, bool, error) {
	var ct contentTypes
	if err := xml.Unmarshal(trimBOM(data), &ct); err != nil {
		return nil, false, &ParseError{Path: ContentTypesPath, Err: err}
	}

	exts := make(map[string]bool, len(ct.Defaults))
	for _, d := range ct.Defaults {
		exts[strings.ToLower(d.Extension)] = true
	}
	parts := make(map[string]bool, len(ct.Overrides))
	for _, o := range ct.Overrides {
		parts[o.PartName] = true
	}

	changed := false
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		if p == ContentTypesPath {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
		if ext == "" {
			part := "/" + p
			if !parts[part] {
				parts[part] = true
				ct.Overrides = append(ct.Overrides, contentOverride{PartName: part, ContentType: "application/octet-stream"})
				changed = true
			}
			continue
		}
		if exts[ext] {
			continue
		}
		exts[ext] = true
		ct.Defaults = append(ct.Defaults, contentDefault{Extension: ext, ContentType: contentTypeFor(ext)})
		changed = true
	}
	if !changed {
		return data, false, nil
	}

	if ct.Xmlns == "" {
		ct.Xmlns = contentTypesNamespace
	}
	ct.XMLName = xml.Name{Local: "Types"}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(ct); err != nil {
		return nil, false, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), true, nil
}

func contentTypeFor(ext string) string {
	if t := mime.TypeByExtension("." + ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

var (
	identityTagRe    = regexp.MustCompile(`<Identity\b[^>]*>`)
	displayNameRe    = regexp.MustCompile(`(?s)(<DisplayName\b[^>]*>).*?(</DisplayName>)`)
	descriptionTagRe = regexp.MustCompile(`(?s)(<Description\b[^>]*>).*?(</Description>)`)
)

// patchVSIXManifest keeps extension.vsixmanifest in line with the identity
// overrides. Text edits preserve the rest of the document byte for byte.
func patchVSIXManifest(data []byte, o ManifestOverrides) []byte {
	doc := string(data)
	doc = identityTagRe.ReplaceAllStringFunc(doc, func(tag string) string {
		if o.ExtensionID != nil {
			tag = setXMLAttr(tag, "Id", *o.ExtensionID)
		}
		if o.Version != nil {
			tag = setXMLAttr(tag, "Version", *o.Version)
		}
		if o.Publisher != nil {
			tag = setXMLAttr(tag, "Publisher", *o.Publisher)
		}
		return tag
	})
	if o.Name != nil {
		doc = replaceElementText(displayNameRe, doc, *o.Name)
	}
	if o.Description != nil {
		doc = replaceElementText(descriptionTagRe, doc, *o.Description)
	}
	return []byte(doc)
}

func setXMLAttr(tag, attr, value string) string {
	re := regexp.MustCompile(`(\s` + regexp.QuoteMeta(attr) + `\s*=\s*")[^"]*(")`)
	escaped := escapeXML(value)
	return re.ReplaceAllStringFunc(tag, func(m string) string {
		sub := re.FindStringSubmatch(m)
		return sub[1] + escaped + sub[2]
	})
}

func replaceElementText(re *regexp.Regexp, doc, value string) string {
	escaped := escapeXML(value)
	replaced := false
	return re.ReplaceAllStringFunc(doc, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		sub := re.FindStringSubmatch(m)
		return sub[1] + escaped + sub[2]
	})
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
