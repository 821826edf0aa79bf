package indexer

import "hebrewfeed/internal/firehose"

// changes is the net effect of a batch on the post table.
type changes struct {
	// deletes are URIs removed at any point in the batch. They run before
	// the inserts, so a delete followed by a create leaves the new row.
	deletes []string
	creates []firehose.PostOp
}

type uriState struct {
	create    *firehose.PostOp
	sawDelete bool
}

// foldOps reduces the batch's post operations per URI in stream order. A
// create only counts when no earlier create in the batch is still live,
// which matches insert-if-absent; a delete cancels any earlier create.
func foldOps(extractor *firehose.Extractor, commits []*firehose.Commit) changes {
	var order []string
	states := make(map[string]*uriState)

	for _, c := range commits {
		for _, op := range extractor.Extract(c) {
			st, ok := states[op.URI]
			if !ok {
				st = &uriState{}
				states[op.URI] = st
				order = append(order, op.URI)
			}
			switch op.Action {
			case firehose.ActionCreate:
				if st.create == nil {
					st.create = &op
				}
			case firehose.ActionDelete:
				st.create = nil
				st.sawDelete = true
			}
		}
	}

	var out changes
	for _, uri := range order {
		st := states[uri]
		if st.sawDelete {
			out.deletes = append(out.deletes, uri)
		}
		if st.create != nil {
			out.creates = append(out.creates, *st.create)
		}
	}
	return out
}
