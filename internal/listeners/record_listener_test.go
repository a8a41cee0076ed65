package listeners

import (
	"context"
	"testing"
	"time"

	"ResQLink/internal/controller"
	"ResQLink/internal/models"
	"ResQLink/pkg/search"
	"ResQLink/pkg/sse"
	"ResQLink/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCreatedIsPublishedAndIndexed(t *testing.T) {
	sig := util.NewSignals()
	hub := sse.NewHub(time.Minute)
	engine, err := search.New(search.Config{}, search.BuildIndexMapping(""))
	require.NoError(t, err)
	defer engine.Close()

	InitRecordListeners(sig, engine, hub)
	client := hub.AddClient("c1")

	rec := models.SOSRecord{ID: 7, Message: "Trapped in basement", Severity: models.SeverityCritical, Timestamp: 1}
	sig.Emit(models.SigSOSCreated, nil, controller.RecordCreated{Record: rec, Kind: controller.KindSOS})

	require.Len(t, client.Messages(), 1)
	n, err := engine.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	res, err := engine.Search(context.Background(), search.SearchRequest{Keyword: "basement"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "7", res.Hits[0].ID)
}

func TestOtherSignalsArePublished(t *testing.T) {
	sig := util.NewSignals()
	hub := sse.NewHub(time.Minute)
	InitRecordListeners(sig, nil, hub)
	client := hub.AddClient("c1", "network", "record")

	sig.Emit(models.SigMeshPeersChanged, nil, 6)
	sig.Emit(models.SigSOSStatusChanged, nil, models.StatusChange{ID: 1, Status: models.StatusSent})
	sig.Emit(models.SigMeshPeersChanged, nil, "not an int")

	assert.Len(t, client.Messages(), 2)
}
