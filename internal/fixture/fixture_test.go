package fixture

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/adderprobe/internal/protocol"
	"grimm.is/adderprobe/internal/wire"
)

func TestBuiltinSuites(t *testing.T) {
	suites := Builtin()
	require.Len(t, suites, 3)

	names := []string{suites[0].Name, suites[1].Name, suites[2].Name}
	assert.Equal(t, []string{"Dangling links", "Example", "Reject bad scheme"}, names)

	bad, ok := Lookup("Reject bad scheme")
	require.True(t, ok)
	assert.Len(t, bad.Steps, 27)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestCasesFromSuites(t *testing.T) {
	cases, err := Cases(Builtin())
	require.NoError(t, err)
	require.Len(t, cases, 2+2+27)

	// Sorted by suite name, steps in order.
	ex := cases[2]
	assert.Equal(t, "Example", ex.Suite)
	assert.Equal(t, "Success", ex.Name)
	assert.True(t, ex.Expect)
	assert.Equal(t, "Example : Success", ex.Description())
	assert.Equal(t, protocol.Document{"platform": "Example", "artworks": []any{}}, ex.Document)
	require.NotNil(t, ex.Request)
	assert.False(t, ex.CheckStorage())

	fail := cases[3]
	assert.Equal(t, "Failure", fail.Name)
	assert.False(t, fail.Expect)
	assert.Nil(t, fail.Request, "artworks given as an object has no typed view")

	ftp := cases[4+2]
	assert.Equal(t, "ftp", ftp.Name)
	assert.Equal(t, "Reject bad scheme", ftp.Document["platform"])
	for _, c := range cases {
		for k := range c.Document {
			assert.NotContains(t, k, MetaPrefix)
		}
	}
}

func TestStepRequiresSuccessFlag(t *testing.T) {
	_, err := Cases([]Suite{{Name: "s", Steps: []protocol.Document{{"artworks": []any{}}}}})
	assert.Error(t, err)
}

func TestStepKeepsExplicitPlatform(t *testing.T) {
	cases, err := Cases([]Suite{{Name: "s", Steps: []protocol.Document{{MetaSuccess: true, "platform": "other"}}}})
	require.NoError(t, err)
	assert.Equal(t, "other", cases[0].Document["platform"])
	assert.Equal(t, "step 1", cases[0].Name)
}

func TestLoadTestSet(t *testing.T) {
	set, err := Load(filepath.Join("testdata", "basic.json"))
	require.NoError(t, err)
	require.Len(t, set.TestSets, 1)

	c := set.TestSets[0]
	assert.Equal(t, KindTestSet, c.Kind)
	assert.True(t, c.Expect)
	assert.True(t, c.CheckStorage())
	assert.Equal(t, "Web-ext adder for testdata/basic.json", c.Description())
	require.Len(t, c.Request.Artworks, 1)
	require.NotNil(t, c.Request.Artworks[0].DataSHA256)
	assert.Equal(t, int64(1700000000), *c.Request.Artworks[0].Postdate)
	// The checksum key travels with the request.
	art := c.Document["artworks"].([]any)[0].(map[string]any)
	assert.Contains(t, art, "data.sha256")
}

func TestLoadSuitesYAML(t *testing.T) {
	set, err := Load(filepath.Join("testdata", "suites.yaml"))
	require.NoError(t, err)
	require.Len(t, set.Suites, 2)
	assert.Equal(t, "Accounts", set.Suites[0].Name)

	cases, err := set.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 3)

	num := cases[0]
	assert.Equal(t, "numbers.example", num.Document["platform"])
	require.NotNil(t, num.Request)
	assert.Equal(t, protocol.IntID(12), num.Request.Accounts[0].ID)

	tx := cases[1]
	assert.Equal(t, "tx-42", tx.Document["transaction_id"])
	assert.Equal(t, "Transactions", tx.Document["platform"])

	// YAML documents must be encodable as-is.
	for _, c := range cases {
		_, err := wire.Encode(c.Document)
		assert.NoError(t, err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := map[string]string{
		"missing.json":  "",
		"array.json":    write("array.json", `[1]`),
		"trailing.json": write("trailing.json", `{"platform":"p"} {}`),
		"noplat.json":   write("noplat.json", `{"artworks":[]}`),
		"badtype.json":  write("badtype.json", `{"platform":"p","artworks":{}}`),
		"suites.yaml":   write("suites.yaml", "suites:\n  s: notalist\n"),
		"badyaml.yml":   write("badyaml.yml", "a: [1\n"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			if path == "" {
				path = filepath.Join(dir, name)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestWritePayload(t *testing.T) {
	cases, err := Cases(Builtin())
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := WritePayload(&buf, cases, false)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	docs, err := wire.DecodeAll(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Documents(cases), docs)

	var withTerm bytes.Buffer
	_, err = WritePayload(&withTerm, cases, true)
	require.NoError(t, err)
	assert.Equal(t, buf.Len()+wire.HeaderSize, withTerm.Len())
	assert.Equal(t, wire.Terminator(), withTerm.Bytes()[buf.Len():])
}

func TestLargeIDsReachThePayloadUnchanged(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"tumbex.json": `{"platform":"tumbex","accounts":[{"id":700000000000000001,"name":"alice"}],"art_acc_links":[{"artwork":"https://example.com/post/1","account":700000000000000001,"link":"account"}]}`,
		"tumbex.yaml": "platform: tumbex\naccounts:\n  - id: 700000000000000001\n    name: alice\nart_acc_links:\n  - artwork: https://example.com/post/1\n    account: 700000000000000001\n    link: account\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			set, err := Load(path)
			require.NoError(t, err)
			require.Len(t, set.TestSets, 1)
			c := set.TestSets[0]
			assert.Equal(t, protocol.IntID(700000000000000001), c.Request.Accounts[0].ID)
			assert.Equal(t, protocol.IntID(700000000000000001), c.Request.ArtAccLinks[0].Account)

			var buf bytes.Buffer
			_, err = WritePayload(&buf, set.TestSets, false)
			require.NoError(t, err)
			assert.Contains(t, buf.String(), `"id":700000000000000001`)
			assert.NotContains(t, buf.String(), "700000000000000000")
		})
	}
}
