// Package connection chooses the native query shape for connection tables.
//
// A connection request may constrain its source endpoint, its destination
// endpoint, both or neither, by _uniqueid. Four shapes answer it:
//
//	Case 1  neither endpoint constrained   FindConnection
//	Case 2  one endpoint constrained       Find<endpoint>, FindConnection{src|dst}
//	Case 3  both constrained, fallback     Find<src>, Find<dst>, FindConnection{src, dst}
//	Case 4  both constrained, traversal    Find<origin>, Find<member>{is_connected_to, group_by_source}
//
// Case 4 avoids FindConnection altogether. It applies only when no other
// column or constraint is involved, the relationship class is user-defined,
// both endpoint populations are known and fresh, and the member-side id
// list fits in one group (results.limit). Traversal starts from the
// endpoint class with the smaller population; ties start from the source.
//
// Case 4 returns each (src, dst) pair once even when several connections
// join the same endpoints.
//
// The choice is a pure function of the request and the populations.
// Fallbacks from case 4 to case 3 are logged, never errors.
package connection
