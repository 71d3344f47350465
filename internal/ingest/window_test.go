package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchWindow(t *testing.T) {
	t.Run("first run small mailbox starts at 1", func(t *testing.T) {
		start, limit := fetchWindow(0, 10, 50, 200)
		assert.Equal(t, uint32(1), start)
		assert.Equal(t, 50, limit)
	})

	t.Run("first run large mailbox pulls the start up", func(t *testing.T) {
		start, limit := fetchWindow(0, 5000, 50, 200)
		assert.Equal(t, uint32(4951), start)
		assert.Equal(t, 50, limit)
	})

	t.Run("max initial sync caps the first window", func(t *testing.T) {
		start, limit := fetchWindow(0, 5000, 500, 200)
		assert.Equal(t, uint32(4801), start)
		assert.Equal(t, 200, limit)
	})

	t.Run("incremental run resumes after the cursor", func(t *testing.T) {
		start, limit := fetchWindow(100, 120, 50, 200)
		assert.Equal(t, uint32(101), start)
		assert.Equal(t, 50, limit)
	})

	t.Run("limit never drops below 1", func(t *testing.T) {
		_, limit := fetchWindow(0, 10, 0, 0)
		assert.Equal(t, 1, limit)
	})
}
