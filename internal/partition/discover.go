// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Partition Discoverer: enumerates the (column, value) partitions of a
// dataset by listing its storage paths and scanning for a `key=value`
// segment, the Hive-style layout produced by most partitioned parquet
// writers.

package partition

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"dbgrid/internal/cache"
	coorderrors "dbgrid/internal/errors"
	"dbgrid/internal/sqlengine"
)

// Descriptor is the selected partition column and its discovered values.
// Advisory holds any other candidate columns seen in path segments that
// were not selected (spec §9: "first wins").
type Descriptor struct {
	Column   string
	Values   []string
	Advisory []string
}

const discoveryTTL = 5 * time.Minute

// Discoverer issues metadata-only queries against the executor and caches
// the result per dataset reference, since the underlying file listing
// rarely changes between requests to the same dataset.
type Discoverer struct {
	executor *sqlengine.Executor
	cache    *cache.Cache
}

func New(executor *sqlengine.Executor, c *cache.Cache) *Discoverer {
	return &Discoverer{executor: executor, cache: c}
}

func (d *Discoverer) Discover(ctx context.Context, datasetRef string) (*Descriptor, error) {
	key := "partition:" + datasetRef
	if v, ok := d.cache.Get(key); ok {
		return v.(*Descriptor), nil
	}

	query := fmt.Sprintf("SELECT DISTINCT filename FROM parquet_read(%s, with_filename=true)", quoteLiteral(datasetRef))
	resp, err := d.executor.Query(ctx, sqlengine.Request{SQL: query, NumThreads: sqlengine.AutoThreads})
	if err != nil {
		return nil, coorderrors.NewPartitionFailure(datasetRef, err)
	}

	desc, err := fromFilenames(resp.Rows)
	if err != nil {
		return nil, err
	}

	d.cache.Set(key, desc, discoveryTTL)
	return desc, nil
}

func fromFilenames(rows [][]any) (*Descriptor, error) {
	selected := ""
	values := map[string]bool{}
	advisory := map[string]bool{}

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		path, ok := row[0].(string)
		if !ok {
			continue
		}
		col, val, ok := firstPartitionSegment(path)
		if !ok {
			continue
		}
		if selected == "" {
			selected = col
		}
		if col == selected {
			values[val] = true
		} else {
			advisory[col] = true
		}
	}

	if selected == "" {
		return nil, coorderrors.NewUnpartitionedDataset("no path yielded a key=value segment")
	}

	vals := make([]string, 0, len(values))
	for v := range values {
		vals = append(vals, v)
	}
	sort.Strings(vals)

	adv := make([]string, 0, len(advisory))
	for a := range advisory {
		adv = append(adv, a)
	}
	sort.Strings(adv)

	return &Descriptor{Column: selected, Values: vals, Advisory: adv}, nil
}

// firstPartitionSegment scans a URL-decoded storage path for the first
// segment matching "/<key>=<value>/".
func firstPartitionSegment(path string) (col, val string, ok bool) {
	decoded, err := url.QueryUnescape(path)
	if err != nil {
		decoded = path
	}
	for _, seg := range strings.Split(decoded, "/") {
		if seg == "" || !strings.Contains(seg, "=") {
			continue
		}
		kv := strings.SplitN(seg, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			continue
		}
		return kv[0], kv[1], true
	}
	return "", "", false
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
