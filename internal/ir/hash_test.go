package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentFingerprintStable(t *testing.T) {
	a := Object{"title": String("x"), "size": Int(3)}
	b := Object{"size": Int(3), "title": String("x")}

	fa, err := DocumentFingerprint(a)
	require.NoError(t, err)
	fb, err := DocumentFingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb, "key order must not affect the fingerprint")
	assert.Len(t, fa, 64)
}

func TestDocumentFingerprintIgnoresNulls(t *testing.T) {
	withNull, err := DocumentFingerprint(Object{"a": Int(1), "b": Null{}})
	require.NoError(t, err)
	without, err := DocumentFingerprint(Object{"a": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, without, withNull)
}

func TestDocumentFingerprintChangesWithContent(t *testing.T) {
	f1, err := DocumentFingerprint(Object{"a": Int(1)})
	require.NoError(t, err)
	f2, err := DocumentFingerprint(Object{"a": Int(2)})
	require.NoError(t, err)
	assert.NotEqual(t, f1, f2)
}

func TestFingerprintDomainSeparation(t *testing.T) {
	// Same payload bytes under different domains must differ.
	doc := Object{"query": String("q"), "variables": Object{}}
	df, err := DocumentFingerprint(doc)
	require.NoError(t, err)
	qf, err := QueryFingerprint("q", Object{})
	require.NoError(t, err)
	assert.NotEqual(t, df, qf)
}
