package inmemdb_test

import (
	"testing"

	inmemdb "github.com/trezcool/prepdesk/storage/database/inmem"
	testutil "github.com/trezcool/prepdesk/tests"
)

func TestSaveLogRepository(t *testing.T) {
	testutil.CheckSaveLogRepository(t, inmemdb.NewSaveLogRepository())
}
