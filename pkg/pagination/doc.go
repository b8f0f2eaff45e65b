// Package pagination implements the cursor paging used by every list method.
//
// Cursors are opaque to clients. The server encodes the offset of the next
// page; the client passes it back unchanged until a page comes back without
// one.
//
// # Server side
//
//	page, next, err := pagination.Paginate(tools, params.Cursor, pagination.DefaultLimit)
//	if err != nil {
//	    return nil, err
//	}
//	return &protocol.ListToolsResult{Tools: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
//
// # Client side
//
//	tools, err := pagination.CollectAll(ctx, func(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
//	    res, err := c.listToolsPage(ctx, cursor)
//	    if err != nil {
//	        return nil, "", err
//	    }
//	    return res.Tools, res.NextCursor, nil
//	})
package pagination
