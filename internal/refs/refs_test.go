package refs_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/pushgate/internal/refs"
)

const (
	oldHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	newHash = "1111111111111111111111111111111111111111"
)

func TestParseUpdate(t *testing.T) {
	t.Parallel()

	t.Run("should parse a well-formed line", func(t *testing.T) {
		t.Parallel()

		u, err := refs.ParseUpdate(oldHash + " " + newHash + " refs/heads/master")

		require.NoError(t, err)
		assert.Equal(t, oldHash, u.OldHash)
		assert.Equal(t, newHash, u.NewHash)
		assert.Equal(t, "refs/heads/master", u.RefName)
		assert.False(t, u.IsDelete())
		assert.False(t, u.IsCreate())
	})

	t.Run("should recognize a branch creation", func(t *testing.T) {
		t.Parallel()

		u, err := refs.ParseUpdate(refs.ZeroHash + " " + newHash + " refs/heads/master")

		require.NoError(t, err)
		assert.True(t, u.IsCreate())
		assert.False(t, u.IsDelete())
	})

	t.Run("should recognize a branch deletion", func(t *testing.T) {
		t.Parallel()

		u, err := refs.ParseUpdate(oldHash + " " + refs.ZeroHash + " refs/heads/master")

		require.NoError(t, err)
		assert.True(t, u.IsDelete())
	})

	t.Run("should reject a line with too few fields", func(t *testing.T) {
		t.Parallel()

		_, err := refs.ParseUpdate(oldHash + " refs/heads/master")

		var perr *refs.ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("should reject a line with too many fields", func(t *testing.T) {
		t.Parallel()

		_, err := refs.ParseUpdate(oldHash + " " + newHash + " refs/heads/master extra")

		var perr *refs.ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("should reject a short revision", func(t *testing.T) {
		t.Parallel()

		_, err := refs.ParseUpdate("abc123 " + newHash + " refs/heads/master")

		var perr *refs.ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("should reject a non-hex revision", func(t *testing.T) {
		t.Parallel()

		bad := strings.Repeat("z", 40)
		_, err := refs.ParseUpdate(oldHash + " " + bad + " refs/heads/master")

		var perr *refs.ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("should reject both revisions zero", func(t *testing.T) {
		t.Parallel()

		_, err := refs.ParseUpdate(refs.ZeroHash + " " + refs.ZeroHash + " refs/heads/master")

		var perr *refs.ParseError
		require.ErrorAs(t, err, &perr)
	})
}

func TestReadUpdates(t *testing.T) {
	t.Parallel()

	t.Run("should read every line and skip blanks", func(t *testing.T) {
		t.Parallel()

		input := oldHash + " " + newHash + " refs/heads/master\n" +
			"\n" +
			oldHash + " " + newHash + " refs/heads/develop\n"

		updates, err := refs.ReadUpdates(strings.NewReader(input))

		require.NoError(t, err)
		require.Len(t, updates, 2)
		assert.Equal(t, "refs/heads/master", updates[0].RefName)
		assert.Equal(t, "refs/heads/develop", updates[1].RefName)
	})

	t.Run("should return no updates for empty input", func(t *testing.T) {
		t.Parallel()

		updates, err := refs.ReadUpdates(strings.NewReader(""))

		require.NoError(t, err)
		assert.Empty(t, updates)
	})

	t.Run("should abort on the first malformed line", func(t *testing.T) {
		t.Parallel()

		input := oldHash + " " + newHash + " refs/heads/master\n" +
			"garbage\n"

		_, err := refs.ReadUpdates(strings.NewReader(input))

		var perr *refs.ParseError
		require.ErrorAs(t, err, &perr)
	})
}
