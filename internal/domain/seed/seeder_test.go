package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/remotedom/internal/domain/environment"
	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
)

const yamlSeed = `uri: ui://inbox
nodes:
  - element: ul
    properties:
      count: 2
      open: true
    children:
      - element: li
        children:
          - text: first
      - element: li
        children:
          - text: second
`

const tomlSeed = `uri = "ui://settings"

[[nodes]]
element = "form"

[nodes.properties]
action = "/save"

[[nodes.children]]
element = "input"

[nodes.children.properties]
value = 42
`

const jsonSeed = `{"uri":"ui://status","nodes":[{"text":"ready"}]}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		uri     string
		nodes   int
	}{
		{"yaml", "a.yaml", yamlSeed, "ui://inbox", 5},
		{"yml", "a.yml", yamlSeed, "ui://inbox", 5},
		{"toml", "b.toml", tomlSeed, "ui://settings", 2},
		{"json", "c.json", jsonSeed, "ui://status", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.path, []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.uri, doc.URI)
			assert.Equal(t, tt.path, doc.Path)

			total := 0
			for _, n := range doc.Nodes {
				total += n.Count()
			}
			assert.Equal(t, tt.nodes, total)
			assert.NoError(t, Validate(doc))
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("x.txt", []byte("uri: a"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse("x.json", []byte("{nope"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	text := "t"
	tests := []struct {
		name    string
		doc     *Document
		wantErr string
	}{
		{"missing uri", &Document{}, "uri is required"},
		{"empty node", &Document{URI: "ui://a", Nodes: []Node{{}}}, "nodes[0]: element or text is required"},
		{"both", &Document{URI: "ui://a", Nodes: []Node{{Element: "p", Text: &text}}}, "exclusive"},
		{
			"text with children",
			&Document{URI: "ui://a", Nodes: []Node{{Text: &text, Children: []Node{{Element: "b"}}}}},
			"text nodes take no properties or children",
		},
		{
			"nested",
			&Document{URI: "ui://a", Nodes: []Node{{Element: "div", Children: []Node{{Element: "p"}, {}}}}},
			"nodes[0].children[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inbox.yaml", yamlSeed)
	writeFile(t, dir, "nested/settings.toml", tomlSeed)
	writeFile(t, dir, "nested/deeper/status.json", jsonSeed)
	writeFile(t, dir, "README.md", "# not a seed")

	loader, err := NewLoader("")
	require.NoError(t, err)

	docs, err := loader.Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	uris := []string{docs[0].URI, docs[1].URI, docs[2].URI}
	assert.Equal(t, []string{"ui://inbox", "ui://status", "ui://settings"}, uris)
}

func TestLoaderPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inbox.yaml", yamlSeed)
	writeFile(t, dir, "nested/settings.toml", tomlSeed)

	loader, err := NewLoader("nested/**/*.toml")
	require.NoError(t, err)

	docs, err := loader.Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ui://settings", docs[0].URI)

	_, err = NewLoader("[")
	assert.Error(t, err)
}

func TestLoaderReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", jsonSeed)
	writeFile(t, dir, "bad.json", "{")

	loader, err := NewLoader("")
	require.NoError(t, err)

	docs, err := loader.Load(context.Background(), dir)
	assert.Error(t, err)
	assert.Len(t, docs, 1)
}

func TestApply(t *testing.T) {
	doc, err := Parse("a.yaml", []byte(yamlSeed))
	require.NoError(t, err)

	s := surface.New("ui://inbox")
	n, err := Apply(s, doc)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	s.ClearHistory()

	snap := s.Snapshot()
	require.Len(t, snap.Children, 1)
	list := snap.Children[0]
	assert.Equal(t, "ul", list.Element)

	count, ok := list.Properties.Get("count")
	require.True(t, ok)
	assert.Equal(t, 2.0, count)
	assert.Equal(t, "count", list.Properties[0].Name)
	assert.Equal(t, "open", list.Properties[1].Name)

	require.Len(t, list.Children, 2)
	assert.Equal(t, "second", list.Children[1].Children[0].Data)
}

func TestSeederSeed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inbox.yaml", yamlSeed)
	writeFile(t, dir, "settings.toml", tomlSeed)
	writeFile(t, dir, "invalid.json", `{"nodes":[{"text":"no uri"}]}`)

	reg := environment.NewRegistry()
	loader, err := NewLoader("")
	require.NoError(t, err)

	report, err := NewSeeder(reg, loader, nil).Seed(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Loaded: 2, Failed: 1, Nodes: 7}, report)
	assert.Equal(t, []string{"ui://inbox", "ui://settings"}, reg.URIs())

	s, ok := reg.Lookup("ui://settings")
	require.True(t, ok)
	snap := s.Snapshot()
	input := snap.Children[0].Children[0]
	value, _ := input.Properties.Get("value")
	assert.Equal(t, 42.0, value)

	reg.ResetAll()
}

func TestSeederMissingDir(t *testing.T) {
	loader, err := NewLoader("")
	require.NoError(t, err)

	report, err := NewSeeder(environment.NewRegistry(), loader, nil).
		Seed(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, report)
}
