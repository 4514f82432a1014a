package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/EthanQC/warpong/internal/adapters/out/storagetest"
	"github.com/EthanQC/warpong/internal/ports/out"
)

// 需要真实 MongoDB，例如 WARPONG_MONGO_URI=mongodb://127.0.0.1:27017
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("WARPONG_MONGO_URI")
	if uri == "" {
		t.Skip("WARPONG_MONGO_URI not set")
	}

	storagetest.Run(t, func(t *testing.T) out.Storage {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		dbName := fmt.Sprintf("warpong_test_%d_%s", time.Now().UnixNano(),
			strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
		if len(dbName) > 60 {
			dbName = dbName[:60]
		}
		s, err := Connect(ctx, uri, dbName)
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.client.Database(dbName).Drop(ctx)
			_ = s.Close(ctx)
		})
		return s
	})
}
