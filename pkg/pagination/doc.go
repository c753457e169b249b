// Package pagination walks cursor-paginated collections lazily.
//
// A Result is built from two fetch functions and consumed once, either page
// by page or item by item, with range-over-func:
//
//	result := pagination.New(fetchFirst, fetchNext)
//	for node, err := range result.Items(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(node.ID)
//	}
//
// Pages are fetched strictly in sequence and only on demand. Cursors are
// followed verbatim; the package never builds URLs of its own.
package pagination
