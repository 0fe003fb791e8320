package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFileRecordSeedsInitialVersion(t *testing.T) {
	r := newFileRecord("a.txt", initialVersion, initialVersion)
	require.NotNil(t, r.versions[initialVersion])
	require.True(t, r.hasReaderVersion())
}

func TestNewFileRecordNonExistentStartsEmpty(t *testing.T) {
	r := newFileRecord("a.txt", nonExistVersion, nonExistVersion)
	require.Empty(t, r.versions)
	require.False(t, r.hasReaderVersion())
	require.Nil(t, r.readerVersionEntry())
}

func TestFileRecordNextVersionIDMonotonic(t *testing.T) {
	r := newFileRecord("a.txt", nonExistVersion, nonExistVersion)
	require.Equal(t, 1, r.nextVersionID())
	require.Equal(t, 2, r.nextVersionID())
}
