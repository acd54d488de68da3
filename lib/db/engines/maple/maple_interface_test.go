package maple

import (
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
	dbtesting "github.com/ValentinKolb/dDoc/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunUnitDBTests(t, "MapleDB", func() db.UnitDB {
		return NewMapleDB(nil)
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunUnitDBBenchmarks(t, "MapleDB", func() db.UnitDB {
		return NewMapleDB(nil)
	})
}
