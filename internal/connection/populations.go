package connection

import (
	"time"

	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/schema"
)

// PopulationsFor reads endpoint populations for a connection table from the
// catalog. They are unknown when an endpoint class is unnamed or missing,
// and stale once the catalog is older than maxAge. A non-positive maxAge
// never expires.
func PopulationsFor(t *options.Table, cat *schema.Catalog, now time.Time, maxAge time.Duration) Populations {
	var p Populations
	if t.SrcClass == "" || t.DstClass == "" {
		return p
	}
	src, okSrc := cat.Population(t.SrcClass)
	dst, okDst := cat.Population(t.DstClass)
	p.Src, p.Dst = src, dst
	p.Known = okSrc && okDst
	if maxAge > 0 && cat.Age(now) > maxAge {
		p.Known = false
	}
	return p
}
