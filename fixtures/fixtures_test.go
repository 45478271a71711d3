package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInFixturesAreValid(t *testing.T) {
	l := NewLoader("")
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			v, err := l.Load(name)
			require.NoError(t, err)
			assert.NotEqual(t, "", v.GetByKey("resourceType").StringValue())
		})
	}
}

func TestBuiltInPatients(t *testing.T) {
	v, err := NewLoader("").Load(Patients)
	require.NoError(t, err)

	entries := v.GetByKey("entry")
	require.Equal(t, 5, entries.Count())
	var mbis []string
	for i := 0; i < entries.Count(); i++ {
		id := entries.GetByIndex(i).GetByKey("resource").GetByKey("identifier").GetByIndex(0)
		assert.Equal(t, "http://hl7.org/fhir/sid/us-mbi", id.GetByKey("system").StringValue())
		mbis = append(mbis, id.GetByKey("value").StringValue())
	}
	assert.Contains(t, mbis, "1SQ3F00AA00")
	assert.Contains(t, mbis, "0S80C00AA00")
}

func TestDirectoryOverridesBuiltIn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roster_bundle.json"), []byte(`{"resourceType":"Group","id":"x"}`), 0o600))

	l := NewLoader(dir)
	v, err := l.Load(Roster)
	require.NoError(t, err)
	assert.Equal(t, "x", v.GetByKey("id").StringValue())

	// anything not in the directory still comes from the built-in set
	v, err = l.Load(Providers)
	require.NoError(t, err)
	assert.Equal(t, "Bundle", v.GetByKey("resourceType").StringValue())
}

func TestInvalidFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roster_bundle.json"), []byte(`{`), 0o600))

	_, err := NewLoader(dir).Load(Roster)
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestUnknownFixture(t *testing.T) {
	_, err := NewLoader("").Load("nope")
	assert.ErrorContains(t, err, `unknown fixture "nope"`)
}
