//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/birdhomie/internal/datastore"
	"github.com/tphakala/birdhomie/internal/datastore/entities"
)

// TestMySQLVisitUpsert runs the visit upsert against a real MySQL server.
// Requires Docker.
func TestMySQLVisitUpsert(t *testing.T) {
	ctx := t.Context()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("birdhomie"),
		mysql.WithUsername("birdhomie"),
		mysql.WithPassword("birdhomie"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	mgr, err := datastore.NewMySQLManager(&datastore.MySQLConfig{
		Host:     host,
		Port:     port.Port(),
		Username: "birdhomie",
		Password: "birdhomie",
		Database: "birdhomie",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize())

	files := NewFileRepository(mgr.DB())
	visits := NewVisitRepository(mgr.DB())

	f := &entities.File{FileHash: "mysql", FilePath: "clips/a.mp4", EventStart: time.Now()}
	require.NoError(t, files.Create(ctx, f))

	// unchanged values report zero affected rows on MySQL
	require.NoError(t, files.MarkFailed(ctx, f.ID, "same"))
	require.NoError(t, files.MarkFailed(ctx, f.ID, "same"))

	v, err := visits.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: f.ID, TaxonID: 13094, SpeciesConfidence: 0.9,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.9, 0.93), BestIndex: 1,
	})
	require.NoError(t, err)
	require.Len(t, v.Detections, 2)
	assert.Equal(t, v.Detections[1].ID, *v.BestDetectionID)

	v2, err := visits.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: f.ID, TaxonID: 13094, SpeciesConfidence: 0.86,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.86), BestIndex: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, v.ID, v2.ID)
	assert.Len(t, v2.Detections, 1)
}
