package fake

import (
	"testing"

	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceRecorder []models.StatusRecord

func (r *sliceRecorder) RecordStatus(rec models.StatusRecord) error {
	*r = append(*r, rec)
	return nil
}

func TestGenerateServers(t *testing.T) {
	servers := GenerateServers(50)
	require.Len(t, servers, 50)

	ids := make(map[string]struct{}, len(servers))
	for _, s := range servers {
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.Features)
		assert.LessOrEqual(t, len(s.Features), 3)
		ids[directory.CardID(s.Name)] = struct{}{}
	}

	// Numbered names never collide
	assert.Len(t, ids, 50)
}

func TestSeedStatusesSkipsUnprobeable(t *testing.T) {
	servers := []models.ServerDescriptor{
		{Name: "Alpha", URL: "https://alpha.test"},
		{Name: "Listed"},
		{Name: "Bravo", URL: "https://bravo.test/"},
	}

	var rec sliceRecorder
	SeedStatuses(&rec, servers)

	require.Len(t, rec, 2)
	assert.Equal(t, "server-alpha", rec[0].CardID)
	assert.Equal(t, "https://bravo.test", rec[1].BaseURL)
	for _, r := range rec {
		assert.Contains(t, []string{"online", "offline"}, r.Status)
		if r.Status == "offline" {
			assert.Nil(t, r.Players)
		}
	}
}
